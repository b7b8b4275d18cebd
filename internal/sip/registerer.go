package sip

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"sipagent/internal/errs"
)

// client lazily builds the sipgo.Client used to send REGISTER
// requests; diago doesn't expose one directly, so the registration
// path talks to sipgo underneath it, same as teacher's UA construction
// (`sipgo.NewUA()`) one layer below diago.Diago.
func (r *Registerer) client() (*sipgo.Client, error) {
	return sipgo.NewClient(r.Stack.UA)
}

// Register sends one REGISTER transaction with the given expiry
// (0 = de-register), digest-authenticating on a 401/407 challenge,
// and returns the server-granted expiry from the response's Expires
// header (falling back to the requested value when absent).
func (r *Registerer) Register(ctx context.Context, expirySeconds int) (int, error) {
	client, err := r.client()
	if err != nil {
		return 0, errs.Wrap(errs.TransientIO, "sip client init failed", err)
	}

	req, err := r.buildRequest(expirySeconds)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, "register request build failed", err)
	}

	tx, err := client.TransactionRequest(ctx, req)
	if err != nil {
		return 0, errs.Wrap(errs.TransientIO, "register transaction failed", err)
	}
	defer tx.Terminate()

	resp, err := waitFinalResponse(ctx, tx)
	if err != nil {
		return 0, errs.Wrap(errs.Timeout, "register timed out", err)
	}

	if resp.StatusCode == sip.StatusUnauthorized || resp.StatusCode == sip.StatusProxyAuthRequired {
		authed, err := r.authenticate(ctx, client, req, resp)
		if err != nil {
			return 0, errs.Wrap(errs.AuthFailed, "register auth failed", err)
		}
		resp = authed
	}

	if resp.StatusCode >= 300 {
		return 0, errs.New(errs.AuthFailed, fmt.Sprintf("register rejected: %d %s", resp.StatusCode, resp.Reason))
	}

	if h := resp.GetHeader("Expires"); h != nil {
		var granted int
		if _, scanErr := fmt.Sscanf(h.Value(), "%d", &granted); scanErr == nil {
			return granted, nil
		}
	}
	return expirySeconds, nil
}

func (r *Registerer) buildRequest(expirySeconds int) (*sip.Request, error) {
	aorURI, err := sip.ParseUri(r.AOR)
	if err != nil {
		return nil, err
	}
	hostURI, err := sip.ParseUri("sip:" + r.RegHost)
	if err != nil {
		return nil, err
	}
	req := sip.NewRequest(sip.REGISTER, hostURI)
	req.AppendHeader(sip.NewHeader("To", fmt.Sprintf("<%s>", aorURI.String())))
	req.AppendHeader(sip.NewHeader("From", fmt.Sprintf("<%s>", aorURI.String())))
	req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expirySeconds)))
	req.AppendHeader(sip.NewHeader("Contact", fmt.Sprintf("<%s>", aorURI.String())))
	return req, nil
}

// authenticate retries the REGISTER once with digest credentials
// computed from the challenge, matching how diago's own DigestAuth
// helper (teacher's bridge/service.go authorizeInboundSIP) responds
// server-side; here it is the client side of the same exchange.
func (r *Registerer) authenticate(ctx context.Context, client *sipgo.Client, orig *sip.Request, challenge *sip.Response) (*sip.Response, error) {
	retry := orig.Clone()
	if err := sipgo.DigestAuthorize(retry, challenge, r.AuthUser, r.AuthPass); err != nil {
		return nil, err
	}
	tx, err := client.TransactionRequest(ctx, retry)
	if err != nil {
		return nil, err
	}
	defer tx.Terminate()
	return waitFinalResponse(ctx, tx)
}

func waitFinalResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-tx.Responses():
			if !ok {
				return nil, fmt.Errorf("sip: transaction closed without final response")
			}
			if resp.StatusCode < 200 {
				continue // provisional
			}
			return resp, nil
		}
	}
}
