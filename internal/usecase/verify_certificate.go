package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"noskid/internal/domain"
	"noskid/pkg/certpayload"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultAuthorityTimeout = 10 * time.Second

type AttemptState string

const (
	StateIdle              AttemptState = "idle"
	StateExtracting        AttemptState = "extracting"
	StateAwaitingAuthority AttemptState = "awaiting_authority"
	StateReconciling       AttemptState = "reconciling"
	StateValid             AttemptState = "valid"
	StateInvalid           AttemptState = "invalid"
	StateInconclusive      AttemptState = "inconclusive"
)

func (s AttemptState) Terminal() bool {
	return s == StateValid || s == StateInvalid || s == StateInconclusive
}

type VerifyOptions struct {
	Strict         bool
	AllowBoosted   bool
	UseLegacyField bool
	// Timeout bounds the authority call; zero uses the use case default.
	Timeout time.Duration
}

func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{Strict: true, AllowBoosted: true}
}

// VerifyInput carries either a raw key or certificate PNG bytes. File wins
// when both are set.
type VerifyInput struct {
	Key  string
	File []byte
}

// Attempt is the state of one verification. It is created per call and never
// shared between calls.
type Attempt struct {
	ID      string
	State   AttemptState
	Key     domain.VerificationKey
	Claim   *certpayload.LocalClaim
	Options VerifyOptions

	mu      sync.Mutex
	history []AttemptState
}

func (a *Attempt) History() []AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AttemptState, len(a.history))
	copy(out, a.history)
	return out
}

type VerifyCertificate struct {
	Authority Authority
	Policy    AcceptancePolicy
	Logger    *logrus.Logger
	Timeout   time.Duration
	NewID     func() string
	// OnTransition observes state changes, e.g. to drive a widget.
	OnTransition func(a *Attempt, from, to AttemptState)
}

func (uc *VerifyCertificate) VerifyWithKey(ctx context.Context, key string, opts VerifyOptions) domain.Verdict {
	return uc.Verify(ctx, VerifyInput{Key: key}, opts)
}

func (uc *VerifyCertificate) VerifyFromFile(ctx context.Context, data []byte, opts VerifyOptions) domain.Verdict {
	if data == nil {
		data = []byte{}
	}
	return uc.Verify(ctx, VerifyInput{File: data}, opts)
}

// Start runs an attempt in the background; the channel yields exactly one
// verdict and is then closed.
func (uc *VerifyCertificate) Start(ctx context.Context, in VerifyInput, opts VerifyOptions) <-chan domain.Verdict {
	out := make(chan domain.Verdict, 1)
	go func() {
		defer close(out)
		out <- uc.Verify(ctx, in, opts)
	}()
	return out
}

func (uc *VerifyCertificate) Verify(ctx context.Context, in VerifyInput, opts VerifyOptions) domain.Verdict {
	attempt := &Attempt{ID: uc.newID(), State: StateIdle, Options: opts, history: []AttemptState{StateIdle}}
	log := loggerOrDiscard(uc.Logger).WithField("attempt_id", attempt.ID)

	verdict := uc.run(ctx, attempt, in, log)
	verdict.AttemptID = attempt.ID
	verdict.Key = attempt.Key
	verdict.Strict = opts.Strict

	switch verdict.Status {
	case domain.VerdictValid:
		uc.transition(attempt, StateValid)
	case domain.VerdictInvalid:
		uc.transition(attempt, StateInvalid)
	default:
		uc.transition(attempt, StateInconclusive)
	}
	log.WithFields(logrus.Fields{
		"key_prefix": attempt.Key.Prefix(),
		"outcome":    verdict.Status,
		"cached":     verdict.Cached,
	}).Debug("verification finished")
	return verdict
}

func (uc *VerifyCertificate) run(ctx context.Context, attempt *Attempt, in VerifyInput, log *logrus.Entry) domain.Verdict {
	if in.File != nil {
		uc.transition(attempt, StateExtracting)
		key, claim, verdict, ok := extract(in.File)
		if !ok {
			log.WithError(verdict.Cause).Info("certificate extraction failed")
			return verdict
		}
		attempt.Key = key
		attempt.Claim = claim
	} else {
		key, err := domain.ParseKey(in.Key)
		if err != nil {
			return domain.Invalid("Verification key must be a 64-character hexadecimal string", err)
		}
		attempt.Key = key
	}
	log = log.WithField("key_prefix", attempt.Key.Prefix())

	uc.transition(attempt, StateAwaitingAuthority)
	answer, err := uc.ask(ctx, attempt)
	if err != nil {
		log.WithError(err).WithField("event", "authority_unreachable").Warn("authority call failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Inconclusive("Request timeout - server took too long to respond", err)
		}
		return domain.Inconclusive("", err)
	}
	if !answer.Success {
		message := answer.Message
		if message == "" {
			message = "Certificate not found or invalid verification key"
		}
		log.WithField("event", "authority_rejected").Info(message)
		v := domain.Invalid(message, domain.ErrAuthorityRejected)
		v.Cached = answer.Cached
		return v
	}
	if answer.Record == nil {
		return domain.Inconclusive("", domain.ErrMalformedResponse)
	}
	record := *answer.Record

	if record.Boosted && !attempt.Options.AllowBoosted {
		log.WithField("event", "boosted_disallowed").Info("boosted certificate refused")
		v := domain.Invalid("Boosted certificates are not allowed", domain.ErrBoostedDisallowed)
		v.Cached = answer.Cached
		return v
	}

	uc.transition(attempt, StateReconciling)
	if attempt.Claim != nil {
		result := CompareClaim(*attempt.Claim, record, attempt.Options.Strict, attempt.Options.UseLegacyField)
		if !result.OK {
			log.WithFields(logrus.Fields{
				"event":  "consistency_mismatch",
				"reason": result.Reason,
			}).Warn("certificate data mismatch")
			v := domain.Invalid("Data mismatch: "+result.Reason, fmt.Errorf("%w: %s", domain.ErrConsistencyMismatch, result.Reason))
			v.Cached = answer.Cached
			return v
		}
	}

	if uc.Policy != nil {
		decision, err := uc.Policy.Evaluate(ctx, AcceptanceInput{Key: attempt.Key.String(), Record: record, Cached: answer.Cached})
		if err != nil {
			log.WithError(err).Warn("acceptance policy evaluation failed")
			return domain.Inconclusive("Acceptance policy unavailable", err)
		}
		if !decision.Allow {
			codes := make([]string, 0, len(decision.Deny))
			for _, d := range decision.Deny {
				codes = append(codes, d.Code)
			}
			reason := "Policy denied"
			if len(codes) > 0 {
				reason += ": " + strings.Join(codes, ", ")
			}
			log.WithField("event", "policy_denied").Info(reason)
			v := domain.Invalid(reason, domain.ErrPolicyDenied)
			v.Cached = answer.Cached
			return v
		}
	}

	v := domain.Valid(record)
	v.Cached = answer.Cached
	return v
}

// ask performs the single outbound call. The select guarantees the attempt
// resolves when ctx ends even if the authority ignores cancellation.
func (uc *VerifyCertificate) ask(ctx context.Context, attempt *Attempt) (AuthorityAnswer, error) {
	if uc.Authority == nil {
		return AuthorityAnswer{}, &domain.TransportError{Err: errors.New("no authority configured")}
	}
	timeout := attempt.Options.Timeout
	if timeout <= 0 {
		timeout = uc.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultAuthorityTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		answer AuthorityAnswer
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		answer, err := uc.Authority.Check(cctx, attempt.Key)
		ch <- result{answer: answer, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return AuthorityAnswer{}, r.err
		}
		return r.answer, nil
	case <-cctx.Done():
		return AuthorityAnswer{}, &domain.TransportError{Err: cctx.Err()}
	}
}

func extract(data []byte) (domain.VerificationKey, *certpayload.LocalClaim, domain.Verdict, bool) {
	text, found, err := certpayload.FromPNG(data)
	if err != nil {
		return "", nil, domain.Invalid("File must be a PNG image", fmt.Errorf("%w: %v", domain.ErrNotPNG, err)), false
	}
	if !found {
		return "", nil, domain.Invalid("Could not extract verification data from file", domain.ErrPayloadMissing), false
	}
	rawKey, ok := certpayload.ExtractKey(text)
	if !ok {
		return "", nil, domain.Invalid("No valid verification key found in certificate", domain.ErrPayloadMissing), false
	}
	key, err := domain.ParseKey(rawKey)
	if err != nil {
		return "", nil, domain.Invalid("No valid verification key found in certificate", err), false
	}
	var claim *certpayload.LocalClaim
	if c, ok := certpayload.DecodeClaim(text); ok {
		claim = &c
	}
	return key, claim, domain.Verdict{}, true
}

func (uc *VerifyCertificate) transition(a *Attempt, to AttemptState) {
	a.mu.Lock()
	from := a.State
	a.State = to
	a.history = append(a.history, to)
	a.mu.Unlock()
	if uc.OnTransition != nil {
		uc.OnTransition(a, from, to)
	}
}

func (uc *VerifyCertificate) newID() string {
	if uc.NewID != nil {
		return uc.NewID()
	}
	return uuid.NewString()
}
