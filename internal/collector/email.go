package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"route-pipeline/internal/model"
)

// EmailParams configures the mailbox collector.
type EmailParams struct {
	IMAPServer           string            `json:"imap_server" validate:"required"`
	IMAPPort             int               `json:"imap_port" validate:"gte=0,lte=65535"`
	Username             string            `json:"username"`
	Password             string            `json:"password"`
	UseSSL               *bool             `json:"use_ssl"`
	Mailbox              string            `json:"mailbox"`
	SenderFilters        []string          `json:"sender_filters"`
	SubjectFilters       []string          `json:"subject_filters"`
	DaysBack             int               `json:"days_back" validate:"gte=0"`
	MarkAsRead           bool              `json:"mark_as_read"`
	ParsingPatterns      map[string]string `json:"parsing_patterns"` // output field -> regex
	ProcessAttachments   *bool             `json:"process_attachments"`
	AttachmentExtensions []string          `json:"attachment_extensions"`
	Delimiter            string            `json:"delimiter"`
}

// MailMessage is a fetched message reduced to what extraction needs.
type MailMessage struct {
	UID         uint32
	MessageID   string
	From        string
	Subject     string
	Date        time.Time
	Body        string
	Attachments []MailAttachment
}

// MailAttachment is one decoded attachment.
type MailAttachment struct {
	Filename string
	Data     []byte
}

// MailSession is an open, authenticated mailbox.
type MailSession interface {
	Fetch(ctx context.Context, since time.Time) ([]MailMessage, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	Close() error
}

// MailDialer opens a session. Implementations return AuthError or SourceUnavailable.
type MailDialer func(ctx context.Context, p EmailParams) (MailSession, error)

type namedPattern struct {
	field string
	re    *regexp.Regexp
}

type emailCollector struct {
	base
	params   EmailParams
	dial     MailDialer
	patterns []namedPattern
	exts     map[string]bool
}

func newEmailCollector(b base, cfg model.CollectorConfig, dial MailDialer) (*emailCollector, error) {
	var p EmailParams
	if err := decodeParams(cfg, &p); err != nil {
		return nil, err
	}
	if p.IMAPPort == 0 {
		p.IMAPPort = 993
	}
	if p.Mailbox == "" {
		p.Mailbox = "INBOX"
	}
	if p.DaysBack == 0 {
		p.DaysBack = 7
	}
	if len(p.AttachmentExtensions) == 0 {
		p.AttachmentExtensions = []string{".csv", ".json", ".xlsx"}
	}

	c := &emailCollector{base: b, params: p, dial: dial, exts: make(map[string]bool)}
	for _, ext := range p.AttachmentExtensions {
		c.exts[strings.ToLower(ext)] = true
	}
	fields := make([]string, 0, len(p.ParsingPatterns))
	for f := range p.ParsingPatterns {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		re, err := regexp.Compile(p.ParsingPatterns[f])
		if err != nil {
			return nil, model.Errorf(model.KindConfiguration, "collector "+cfg.Name, "parsing pattern %s: %v", f, err)
		}
		c.patterns = append(c.patterns, namedPattern{field: f, re: re})
	}
	return c, nil
}

func (c *emailCollector) TestConnection(ctx context.Context) error {
	s, err := c.dial(ctx, c.params)
	if err != nil {
		return err
	}
	return s.Close()
}

func (c *emailCollector) Fetch(ctx context.Context) (*FetchResult, error) {
	s, err := c.dial(ctx, c.params)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	since := c.now().AddDate(0, 0, -c.params.DaysBack)
	msgs, err := s.Fetch(ctx, since)
	if err != nil {
		return nil, err
	}

	res := &FetchResult{}
	matched := 0
	for _, m := range msgs {
		if !c.accepts(m) {
			continue
		}
		matched++
		origin := uidOrigin(m.UID)
		found := false

		if fields := c.extract(m.Body); len(fields) > 0 {
			fields["subject"] = m.Subject
			fields["sender"] = m.From
			fields["message_date"] = m.Date.Format(time.RFC3339)
			fields["message_id"] = m.MessageID
			res.Records = append(res.Records, model.RawRecord{Origin: origin, Fields: fields})
			found = true
		}

		if c.params.ProcessAttachments == nil || *c.params.ProcessAttachments {
			for _, a := range m.Attachments {
				if !c.exts[strings.ToLower(filepath.Ext(a.Filename))] {
					continue
				}
				rows, err := parseTable(a.Filename, a.Data, c.params.Delimiter)
				if err != nil {
					res.warn(model.KindMalformedInput, origin, fmt.Sprintf("attachment %s: %v", a.Filename, err))
					continue
				}
				for _, row := range rows {
					res.Records = append(res.Records, model.RawRecord{Origin: origin, Fields: row})
				}
				found = true
			}
		}

		if found {
			res.Origins = append(res.Origins, origin)
		}
	}
	c.logger.Info("scanned mailbox", "mailbox", c.params.Mailbox, "messages", len(msgs), "matched", matched, "records", len(res.Records))
	return res, nil
}

// accepts applies sender and subject filters, case-insensitively. Empty filters accept all.
func (c *emailCollector) accepts(m MailMessage) bool {
	return containsAny(m.From, c.params.SenderFilters) && containsAny(m.Subject, c.params.SubjectFilters)
}

func containsAny(s string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	s = strings.ToLower(s)
	for _, f := range filters {
		if strings.Contains(s, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// extract applies each named pattern independently to the body.
func (c *emailCollector) extract(body string) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, p := range c.patterns {
		m := p.re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		v := m[0]
		if len(m) > 1 {
			v = m[1]
		}
		fields[p.field] = strings.TrimSpace(v)
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func uidOrigin(uid uint32) string { return "uid:" + strconv.FormatUint(uint64(uid), 10) }

func (c *emailCollector) Acknowledge(ctx context.Context, origins []string) error {
	if !c.params.MarkAsRead || len(origins) == 0 {
		return nil
	}
	uids := make([]uint32, 0, len(origins))
	for _, o := range origins {
		n, err := strconv.ParseUint(strings.TrimPrefix(o, "uid:"), 10, 32)
		if err != nil {
			return fmt.Errorf("bad origin %q: %w", o, err)
		}
		uids = append(uids, uint32(n))
	}

	s, err := c.dial(ctx, c.params)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.MarkSeen(ctx, uids)
}
