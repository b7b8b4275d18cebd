// Package sip wraps github.com/emiago/diago and github.com/emiago/sipgo
// behind the narrow interfaces internal/call and internal/ua need
// (call.Dialog, ua.Dialer, ua.Registerer), so those packages never
// import the SIP stack directly. Grounded on teacher's bridge/service.go
// (sip.NewDialog/dialog.Invite/dialog.Ack/dialog.WaitAnswer, and
// diago.Diago.Serve for inbound dialogs).
package sip

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emiago/diago"
	"github.com/emiago/diago/media"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"sipagent/internal/call"
)

// DefaultCodecs is the fixed PCMU/PCMA/G722/telephone-event offer this
// agent answers and dials with, using the same static payload-type
// assignments as internal/codec's registry (PCMU=0, PCMA=8, G722=9,
// telephone-event on the first free dynamic PT). Grounded on teacher's
// bridge/service.go SIPCodecs, simplified from an enumeration over
// media-sdk's global codec registry to this agent's fixed codec set.
func DefaultCodecs(frameDuration time.Duration) []media.Codec {
	if frameDuration <= 0 {
		frameDuration = 20 * time.Millisecond
	}
	return []media.Codec{
		{Name: "PCMU", PayloadType: 0, SampleRate: 8000, SampleDur: frameDuration, NumChannels: 1},
		{Name: "PCMA", PayloadType: 8, SampleRate: 8000, SampleDur: frameDuration, NumChannels: 1},
		{Name: "G722", PayloadType: 9, SampleRate: 8000, SampleDur: frameDuration, NumChannels: 1},
		{Name: "telephone-event", PayloadType: 96, SampleRate: 8000, SampleDur: frameDuration, NumChannels: 1},
	}
}

// Stack owns one diago.Diago instance (transports + media config) and
// exposes Dial/Serve/Register to the rest of the application.
type Stack struct {
	UA    *sipgo.UserAgent
	Diago *diago.Diago
}

// Transport mirrors diago.Transport's fields the config layer fills in
// (bind host/port, external host, protocol), kept here to avoid every
// caller importing diago directly just to build one.
type Transport struct {
	Proto        string
	BindHost     string
	BindPort     int
	ExternalHost string
}

func New(transports []Transport, logger *slog.Logger) (*Stack, error) {
	uaStack, err := sipgo.NewUA()
	if err != nil {
		return nil, err
	}
	opts := make([]diago.DiagoOption, 0, len(transports))
	for _, t := range transports {
		opts = append(opts, diago.WithTransport(diago.Transport{
			Transport:    t.Proto,
			BindHost:     t.BindHost,
			BindPort:     t.BindPort,
			ExternalHost: t.ExternalHost,
		}))
	}
	d := diago.NewDiago(uaStack, opts...)
	return &Stack{UA: uaStack, Diago: d}, nil
}

// Serve runs the inbound-dialog loop, per teacher's Service.Start.
func (s *Stack) Serve(ctx context.Context, handle func(*diago.DialogServerSession)) error {
	return s.Diago.Serve(ctx, handle)
}

// dialogAdapter satisfies call.Dialog over a diago dialog session.
// accept carries the one piece of behavior that differs between a
// server dialog (send the 200 OK) and an already-ACKed client dialog
// (nothing left to send).
type dialogAdapter struct {
	session interface {
		Close() error
	}
	id     string
	uri    string
	accept func() error
}

func (d *dialogAdapter) ID() string        { return d.id }
func (d *dialogAdapter) RemoteURI() string { return d.uri }
func (d *dialogAdapter) Close() error      { return d.session.Close() }
func (d *dialogAdapter) Accept() error {
	if d.accept == nil {
		return nil
	}
	return d.accept()
}

// WrapServerDialog adapts an inbound diago.DialogServerSession into
// call.Dialog; its Accept sends the SIP 200 OK with this agent's
// negotiated codec set, matching teacher's
// inDialog.AnswerOptions(diago.AnswerOptions{Codecs: localPrefs}).
func WrapServerDialog(in *diago.DialogServerSession) call.Dialog {
	id := ""
	uri := ""
	if in.InviteRequest != nil {
		if cid := in.InviteRequest.CallID(); cid != nil {
			id = cid.Value()
		}
		uri = in.InviteRequest.From().Address.String()
	}
	return &dialogAdapter{
		session: in,
		id:      id,
		uri:     uri,
		accept: func() error {
			return in.AnswerOptions(diago.AnswerOptions{Codecs: DefaultCodecs(20 * time.Millisecond)})
		},
	}
}

// Dialer adapts Stack.Diago.NewDialog/Invite/Ack into ua.Dialer.
type Dialer struct {
	Stack        *Stack
	AuthUser     string
	AuthPass     string
	EarlyMedia   bool
}

func (d *Dialer) Dial(ctx context.Context, target string) (call.Dialog, error) {
	recipient, err := sip.ParseUri(target)
	if err != nil {
		return nil, fmt.Errorf("sip: parse target %q: %w", target, err)
	}
	dialog, err := d.Stack.Diago.NewDialog(recipient, diago.NewDialogOptions{})
	if err != nil {
		return nil, err
	}
	err = dialog.Invite(ctx, diago.InviteClientOptions{
		EarlyMediaDetect: d.EarlyMedia,
		Username:         d.AuthUser,
		Password:         d.AuthPass,
	})
	if err != nil && err != diago.ErrClientEarlyMedia {
		_ = dialog.Close()
		return nil, err
	}
	if err == nil {
		if ackErr := dialog.Ack(ctx); ackErr != nil {
			_ = dialog.Close()
			return nil, ackErr
		}
	}

	id := ""
	uri := target
	if cid := dialog.InviteRequest.CallID(); cid != nil {
		id = cid.Value()
	}
	return &dialogAdapter{session: dialog, id: id, uri: uri}, nil
}

// Registerer adapts sipgo's REGISTER transaction into ua.Registerer.
// The actual transaction construction (building/sending a REGISTER
// request, digest-challenging on 401/407) lives in registerer.go so
// this file stays focused on the dialog/dialer seam.
type Registerer struct {
	Stack    *Stack
	AOR      string
	RegHost  string
	AuthUser string
	AuthPass string
}
