package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"
)

// smtpNotifier emails the message body through a configured SMTP relay.
// No pack example imports a third-party mail client, so this is built on
// the standard library's net/smtp, matching plain-library email delivery.
type smtpNotifier struct {
	addr     string
	auth     smtp.Auth
	from     string
	to       []string
}

func newSMTPNotifier(u *url.URL) (*smtpNotifier, error) {
	to := u.Query().Get("to")
	if to == "" {
		return nil, fmt.Errorf("notify: smtp URL %q is missing a ?to= recipient", u.Redacted())
	}

	from := u.Query().Get("from")
	if from == "" {
		from = u.User.Username()
	}

	n := &smtpNotifier{
		addr: u.Host,
		from: from,
		to:   strings.Split(to, ";"),
	}

	if password, ok := u.User.Password(); ok {
		n.auth = smtp.PlainAuth("", u.User.Username(), password, hostOnly(u.Host))
	}

	return n, nil
}

func hostOnly(hostport string) string {
	if idx := strings.LastIndex(hostport, ":"); idx >= 0 {
		return hostport[:idx]
	}
	return hostport
}

func (s *smtpNotifier) Send(ctx context.Context, msg Message) error {
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.from, strings.Join(s.to, ", "), msg.Title, msg.Body)

	return smtp.SendMail(s.addr, s.auth, s.from, s.to, []byte(body))
}
