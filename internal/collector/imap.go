package collector

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"route-pipeline/internal/model"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

type imapSession struct {
	c *client.Client
}

// DialIMAP connects, logs in and selects the configured mailbox.
func DialIMAP(ctx context.Context, p EmailParams) (MailSession, error) {
	op := "imap " + p.IMAPServer
	addr := net.JoinHostPort(p.IMAPServer, strconv.Itoa(p.IMAPPort))

	var (
		c   *client.Client
		err error
	)
	if p.UseSSL == nil || *p.UseSSL {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: p.IMAPServer})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, model.NewError(model.KindSourceUnavailable, op, err)
	}
	c.Timeout = 60 * time.Second

	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := c.Login(p.Username, p.Password); err != nil {
		_ = c.Logout()
		return nil, model.NewError(model.KindAuth, op, err)
	}
	if _, err := c.Select(p.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, model.NewError(model.KindSourceUnavailable, op+" select "+p.Mailbox, err)
	}
	return &imapSession{c: c}, nil
}

func (s *imapSession) Fetch(ctx context.Context, since time.Time) ([]MailMessage, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.c.Terminate() })
	defer stop()

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, model.NewError(model.KindSourceUnavailable, "imap search", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() { done <- s.c.UidFetch(seqset, items, ch) }()

	var out []MailMessage
	for msg := range ch {
		out = append(out, decodeMessage(msg, section))
	}
	if err := <-done; err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewError(model.KindSourceUnavailable, "imap fetch", err)
	}
	return out, nil
}

func decodeMessage(msg *imap.Message, section *imap.BodySectionName) MailMessage {
	m := MailMessage{UID: msg.Uid}
	if env := msg.Envelope; env != nil {
		m.Subject = env.Subject
		m.Date = env.Date
		m.MessageID = env.MessageId
		if len(env.From) > 0 {
			m.From = env.From[0].Address()
		}
	}

	r := msg.GetBody(section)
	if r == nil {
		return m
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return m
	}
	if m.Subject == "" {
		m.Subject, _ = mr.Header.Subject()
	}

	var body bytes.Buffer
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			if strings.HasPrefix(ct, "text/") {
				b, _ := io.ReadAll(p.Body)
				body.Write(b)
				body.WriteByte('\n')
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			b, _ := io.ReadAll(p.Body)
			m.Attachments = append(m.Attachments, MailAttachment{Filename: name, Data: b})
		}
	}
	m.Body = body.String()
	return m
}

func (s *imapSession) MarkSeen(ctx context.Context, uids []uint32) error {
	stop := context.AfterFunc(ctx, func() { _ = s.c.Terminate() })
	defer stop()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return model.NewError(model.KindSourceUnavailable, "imap store", err)
	}
	return nil
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}
