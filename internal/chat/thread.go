// Package chat keeps a support ticket's message thread in sync and sends
// messages with optional attachments and voice notes.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/alerts"
	"storefront/internal/api"
	"storefront/internal/metrics"
	"storefront/internal/models"
)

type API interface {
	GetTicket(ctx context.Context, id int64) (models.Ticket, error)
	ListMessages(ctx context.Context, ticketID int64) ([]models.Message, error)
	SendMessage(ctx context.Context, ticketID int64, msg models.OutgoingMessage) (models.Message, error)
}

// Channel is a push connection. *push.Client satisfies it.
type Channel interface {
	OnMessage(fn func(models.Message))
	OnTicket(fn func(models.Ticket))
	Connect(ctx context.Context) error
	JoinTicket(ticketID int64) error
	LeaveTicket(ticketID int64) error
	Close() error
}

// Config wires a Client. Encoder defaults to a 10 MB limit.
type Config struct {
	API     API
	Alerts  alerts.Sink
	Logger  *slog.Logger
	Encoder *Encoder

	// NewChannel is set only when chat push is enabled.
	NewChannel func() Channel
	// Microphone backs voice notes; nil disables them.
	Microphone Microphone

	PollInterval time.Duration
	StopGrace    time.Duration
}

// Client opens ticket threads.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// New returns a Client with defaults filled in.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Alerts == nil {
		cfg.Alerts = alerts.Discard
	}
	if cfg.Encoder == nil {
		cfg.Encoder = &Encoder{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Client{cfg: cfg, logger: cfg.Logger.With("component", "chat")}
}

// Thread is one open ticket conversation. Close must be called when the
// thread is no longer shown.
type Thread struct {
	c        *Client
	ticketID int64
	logger   *slog.Logger
	recorder *Recorder

	mu         sync.Mutex
	ticket     models.Ticket
	messages   []models.Message
	attachment *Attachment

	cancel    context.CancelFunc
	done      chan struct{}
	ch        Channel
	closeOnce sync.Once
}

// Open loads the ticket and its messages, then keeps them fresh: the list
// is re-fetched every poll interval whether or not push is connected.
func (c *Client) Open(ctx context.Context, ticketID int64) (*Thread, error) {
	logger := c.logger.With("ticket_id", ticketID)
	ticket, err := c.cfg.API.GetTicket(ctx, ticketID)
	if err != nil {
		logger.Error("load ticket", "op", "chat.open", "kind", api.Classify(err), "err", err)
		if api.IsNotFound(err) {
			return nil, models.ErrTicketNotFound
		}
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &Thread{
		c:        c,
		ticketID: ticketID,
		logger:   logger,
		ticket:   ticket,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if c.cfg.Microphone != nil {
		t.recorder = NewRecorder(RecorderConfig{
			Microphone: c.cfg.Microphone,
			StopGrace:  c.cfg.StopGrace,
			MaxBytes:   c.cfg.Encoder.maxBytes(),
			Alerts:     c.cfg.Alerts,
			Logger:     logger,
		})
	}

	_ = t.LoadMessages(ctx)
	if c.cfg.NewChannel != nil {
		t.connectPush(runCtx)
	}
	go t.poll(runCtx)
	return t, nil
}

func (t *Thread) connectPush(ctx context.Context) {
	ch := t.c.cfg.NewChannel()
	ch.OnMessage(func(m models.Message) {
		if m.TicketID == 0 || m.TicketID == t.ticketID {
			t.HandleMessage(m)
		}
	})
	ch.OnTicket(func(tk models.Ticket) {
		if tk.ID == t.ticketID {
			t.HandleTicket(tk)
		}
	})
	if err := ch.Connect(ctx); err != nil {
		t.logger.Warn("chat push unavailable, relying on polling", "err", err)
		return
	}
	if err := ch.JoinTicket(t.ticketID); err != nil {
		t.logger.Warn("join ticket room", "err", err)
	}
	t.mu.Lock()
	t.ch = ch
	t.mu.Unlock()
}

func (t *Thread) poll(ctx context.Context) {
	defer close(t.done)
	tick := time.NewTicker(t.c.cfg.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			_ = t.LoadMessages(ctx)
		}
	}
}

// Close stops polling, leaves the ticket room and releases the microphone.
func (t *Thread) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		<-t.done
		if t.recorder != nil {
			t.recorder.Cancel()
		}
		t.mu.Lock()
		ch := t.ch
		t.ch = nil
		t.mu.Unlock()
		if ch != nil {
			_ = ch.LeaveTicket(t.ticketID)
			_ = ch.Close()
		}
	})
}

func (t *Thread) Ticket() models.Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticket
}

func (t *Thread) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// LoadMessages replaces the local list with the server's. Failures are
// logged and leave the list as it was.
func (t *Thread) LoadMessages(ctx context.Context) error {
	msgs, err := t.c.cfg.API.ListMessages(ctx, t.ticketID)
	metrics.ChatPollsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("load messages", "op", "chat.load", "kind", api.Classify(err), "err", err)
		}
		return err
	}
	t.mu.Lock()
	t.messages = append([]models.Message(nil), msgs...)
	t.mu.Unlock()
	return nil
}

// HandleMessage appends a pushed message unless one with the same id is
// already in the list.
func (t *Thread) HandleMessage(m models.Message) {
	metrics.PushEventsTotal.WithLabelValues("new_message").Inc()
	if !t.appendUnique(m) {
		metrics.DuplicatesDroppedTotal.WithLabelValues("messages").Inc()
	}
}

func (t *Thread) HandleTicket(tk models.Ticket) {
	metrics.PushEventsTotal.WithLabelValues("ticket_updated").Inc()
	t.mu.Lock()
	t.ticket = tk
	t.mu.Unlock()
}

func (t *Thread) appendUnique(m models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.messages {
		if existing.ID == m.ID {
			return false
		}
	}
	t.messages = append(t.messages, m)
	return true
}

// ------- composer -------

// Attach validates and encodes f and makes it the message's attachment,
// replacing any earlier one. Oversized and unsupported files are rejected
// before they are read.
func (t *Thread) Attach(f File) error {
	a, err := t.c.cfg.Encoder.Encode(f)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrFileTooLarge):
			alerts.Emit(t.c.cfg.Alerts, alerts.Error, "Anexo", "Arquivo muito grande (máximo 10MB)")
		case errors.Is(err, models.ErrUnsupportedFile):
			alerts.Emit(t.c.cfg.Alerts, alerts.Error, "Anexo", "Tipo de arquivo não suportado")
		default:
			alerts.Emit(t.c.cfg.Alerts, alerts.Error, "Anexo", "Não foi possível processar o arquivo")
		}
		return err
	}
	t.setAttachment(&a)
	return nil
}

func (t *Thread) Attachment() (Attachment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attachment == nil {
		return Attachment{}, false
	}
	return *t.attachment, true
}

func (t *Thread) ClearAttachment() { t.setAttachment(nil) }

func (t *Thread) setAttachment(a *Attachment) {
	t.mu.Lock()
	t.attachment = a
	t.mu.Unlock()
}

func (t *Thread) Recording() bool {
	return t.recorder != nil && t.recorder.Recording()
}

func (t *Thread) StartRecording(ctx context.Context) error {
	if t.recorder == nil {
		alerts.Emit(t.c.cfg.Alerts, alerts.Error, "Gravação", "Microfone indisponível")
		return models.ErrMicrophoneNotLive
	}
	return t.recorder.Start(ctx)
}

// StopRecording finishes the voice note and attaches it.
func (t *Thread) StopRecording(ctx context.Context) error {
	if t.recorder == nil {
		return models.ErrNotRecording
	}
	a, err := t.recorder.Stop(ctx)
	if err != nil {
		return err
	}
	t.setAttachment(&a)
	return nil
}

func (t *Thread) CancelRecording() {
	if t.recorder != nil {
		t.recorder.Cancel()
	}
}

// Send posts text plus the current attachment, if any. A recording still
// in progress is discarded. On success the returned message is appended and
// the attachment cleared; an "attachment too large" rejection clears the
// attachment too.
func (t *Thread) Send(ctx context.Context, text string) (models.Message, error) {
	t.CancelRecording()

	text = strings.TrimSpace(text)
	att, hasAtt := t.Attachment()
	if text == "" && !hasAtt {
		alerts.Emit(t.c.cfg.Alerts, alerts.Warning, "Mensagem", "Digite uma mensagem ou anexe um arquivo")
		return models.Message{}, models.ErrEmptyMessage
	}

	out := models.OutgoingMessage{Content: text, Type: models.MessageText}
	if hasAtt {
		out.Type = att.Kind
		out.AttachmentURL = att.DataURL
		out.AttachmentName = att.Name
		out.AttachmentSize = att.Size
	}

	msg, err := t.c.cfg.API.SendMessage(ctx, t.ticketID, out)
	metrics.ChatSendTotal.WithLabelValues(string(out.Type), metrics.Outcome(err)).Inc()
	if err != nil {
		t.logger.Warn("send message", "op", "chat.send", "type", out.Type, "kind", api.Classify(err), "err", err)
		detail := api.Detail(err)
		if detail == "" {
			detail = "Não foi possível enviar a mensagem"
		}
		if api.IsAttachmentTooLarge(err) {
			t.ClearAttachment()
		}
		alerts.Emit(t.c.cfg.Alerts, alerts.Error, "Mensagem", detail)
		return models.Message{}, err
	}

	t.ClearAttachment()
	if msg.TicketID == 0 {
		msg.TicketID = t.ticketID
	}
	t.appendUnique(msg)
	return msg, nil
}
