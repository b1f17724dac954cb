package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailConfig holds SMTP settings and the per-kind switches.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// StartTLS upgrades a plain connection; false means implicit TLS (port 465).
	StartTLS   bool
	AdminEmail string

	SendArrival     bool
	SendDeparture   bool
	SendLateArrival bool
}

type mailSender func(ctx context.Context, to string, msg []byte) error

// EmailSink mails arrival and departure notices to the person and late
// arrival alerts to the administrator.
type EmailSink struct {
	cfg  EmailConfig
	send mailSender
	now  func() time.Time
}

func NewEmailSink(cfg EmailConfig) (*EmailSink, error) {
	if cfg.Host == "" {
		return nil, errors.New("email: SMTP host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("email: sender address is required")
	}
	s := &EmailSink{cfg: cfg, now: time.Now}
	s.send = s.deliver
	return s, nil
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Accepts(kind Kind) bool {
	switch kind {
	case KindArrival:
		return s.cfg.SendArrival
	case KindDeparture:
		return s.cfg.SendDeparture
	case KindLateArrival:
		return s.cfg.SendLateArrival && s.cfg.AdminEmail != ""
	default:
		return false
	}
}

func (s *EmailSink) Notify(ctx context.Context, n Notification) error {
	var to, subject, event string
	switch n.Kind {
	case KindArrival:
		to, event = n.Email, "Arrival"
		subject = fmt.Sprintf("Attendance Alert: Arrival - %s", n.Name)
	case KindDeparture:
		to, event = n.Email, "Departure"
		subject = fmt.Sprintf("Attendance Alert: Departure - %s", n.Name)
	case KindLateArrival:
		to, event = s.cfg.AdminEmail, "Late Arrival"
		subject = fmt.Sprintf("Late Arrival Alert: %s", n.Name)
	default:
		return nil
	}
	if to == "" {
		log.Printf("email: no recipient for %s notification of %s, skipping", n.Kind, n.PersonID)
		return nil
	}

	clock := n.ClockTime
	if clock == "" {
		clock = n.Time.Format("15:04:05")
	}
	var body strings.Builder
	body.WriteString("Attendance Notification\r\n\r\n")
	fmt.Fprintf(&body, "Name: %s\r\nID: %s\r\nEvent: %s\r\nTime: %s %s\r\n", n.Name, n.PersonID, event, n.Time.Format("2006-01-02"), clock)
	if n.Text != "" {
		fmt.Fprintf(&body, "\r\n%s\r\n", n.Text)
	}
	body.WriteString("\r\nThis is an automated notification from the attendance system.\r\n")

	msg := buildMessage(s.cfg.From, to, subject, body.String(), s.now())
	if err := s.send(ctx, to, msg); err != nil {
		return fmt.Errorf("failed to send %s email to %s: %w", n.Kind, to, err)
	}
	log.Printf("email: sent %s notification for %s to %s", n.Kind, n.PersonID, to)
	return nil
}

func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

func (s *EmailSink) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}
	dialer := &net.Dialer{}

	var conn net.Conn
	var err error
	if s.cfg.StartTLS {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer c.Close()

	if s.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
