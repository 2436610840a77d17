// Package session resolves the signed-in user of a connection: it follows the
// auth state, binds the principal's profile record and provisions a default
// profile on first sign-in.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/events"
	"github.com/AnshRaj112/taskverse-backend/internal/live"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// Phase is the state of a Binding.
type Phase string

const (
	PhaseResolvingAuth    Phase = "resolving-auth"
	PhaseAnonymous        Phase = "anonymous"
	PhaseResolvingProfile Phase = "resolving-profile"
	PhaseProvisioning     Phase = "provisioning"
	PhaseReady            Phase = "ready"
	PhaseError            Phase = "error"
)

// AuthSource notifies about sign-in and sign-out. The callback receives a nil
// principal when nobody is signed in; the returned func stops notifications.
type AuthSource interface {
	OnAuthStateChange(fn func(p *models.Principal, err error)) func()
}

// Snapshot is the public view of a Binding.
type Snapshot struct {
	Phase     Phase
	Principal *models.Principal
	Profile   *models.UserProfile
	Loading   bool
	Err       error
}

// RolePolicy picks the role of a freshly provisioned profile.
type RolePolicy func(p *models.Principal) string

// AllowListPolicy grants admin to principals whose email the rules list as
// admin, and user to everyone else.
func AllowListPolicy(rules *store.Rules) RolePolicy {
	return func(p *models.Principal) string {
		if rules.IsAdminEmail(p.Email) {
			return models.RoleAdmin
		}
		return models.RoleUser
	}
}

// AvatarFunc derives a deterministic avatar URL from a principal id.
type AvatarFunc func(uid string) string

// DiceBearAvatar is used when no image host is configured.
func DiceBearAvatar(uid string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(uid)
}

type Options struct {
	Roles    RolePolicy
	Avatar   AvatarFunc
	OnChange func(Snapshot)
	Logger   *zap.Logger
}

// Binding is owned by one connection. Its methods must run on the loop.
type Binding struct {
	base   context.Context
	loop   *live.Loop
	store  store.Store
	bus    *events.Bus
	auth   AuthSource
	opts   Options
	logger *zap.Logger

	gen      uint64
	stopAuth func()
	doc      *live.Document
	snap     Snapshot
}

// New creates a binding in the resolving-auth phase. s should be the
// unguarded store: the binding reports its own denials on bus.
func New(ctx context.Context, loop *live.Loop, s store.Store, bus *events.Bus, auth AuthSource, opts Options) *Binding {
	if opts.Roles == nil {
		opts.Roles = func(*models.Principal) string { return models.RoleUser }
	}
	if opts.Avatar == nil {
		opts.Avatar = DiceBearAvatar
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binding{
		base:   ctx,
		loop:   loop,
		store:  s,
		bus:    bus,
		auth:   auth,
		opts:   opts,
		logger: logger,
		snap:   Snapshot{Phase: PhaseResolvingAuth, Loading: true},
	}
}

// Start subscribes to auth changes. Notifications are handled on the loop.
func (b *Binding) Start() {
	if b.stopAuth != nil {
		return
	}
	b.stopAuth = b.auth.OnAuthStateChange(func(p *models.Principal, err error) {
		b.loop.Post(func() { b.authChanged(p, err) })
	})
}

func (b *Binding) Snapshot() Snapshot { return b.snap }

// Close stops auth notifications and releases the profile subscription.
func (b *Binding) Close() {
	if b.stopAuth != nil {
		b.stopAuth()
		b.stopAuth = nil
	}
	b.teardown()
}

func (b *Binding) teardown() {
	b.gen++
	if b.doc != nil {
		b.doc.Close()
		b.doc = nil
	}
}

func (b *Binding) authChanged(p *models.Principal, err error) {
	b.teardown()
	b.set(Snapshot{Phase: PhaseResolvingAuth})

	switch {
	case err != nil:
		b.set(Snapshot{Phase: PhaseError, Err: fmt.Errorf("resolving auth state: %w", err)})
		return
	case p == nil:
		b.set(Snapshot{Phase: PhaseAnonymous})
		return
	}

	principal := *p
	b.set(Snapshot{Phase: PhaseResolvingProfile, Principal: &principal})

	gen := b.gen
	ctx := store.WithCaller(b.base, store.Caller{UID: principal.UID, Email: principal.Email})
	b.doc = live.NewDocument(ctx, b.loop, b.store, b.bus, func(st live.DocState) {
		b.profileChanged(ctx, gen, st)
	})
	b.doc.SetPath(store.UserPath(principal.UID))
}

func (b *Binding) profileChanged(ctx context.Context, gen uint64, st live.DocState) {
	if gen != b.gen || st.Loading {
		return
	}
	principal := b.snap.Principal

	if st.Err != nil {
		// A read denial was already emitted by the document binding.
		b.set(Snapshot{Phase: PhaseError, Principal: principal, Err: st.Err})
		return
	}
	if st.Data != nil {
		var profile models.UserProfile
		if err := store.Decode(st.Data, &profile); err != nil {
			b.set(Snapshot{Phase: PhaseError, Principal: principal, Err: err})
			return
		}
		b.set(Snapshot{Phase: PhaseReady, Principal: principal, Profile: &profile})
		return
	}
	if b.snap.Phase == PhaseProvisioning {
		return
	}
	b.provision(ctx, gen, principal)
}

// DefaultProfile is the record written for a principal on first sign-in.
func DefaultProfile(p *models.Principal, role, avatarURL string) store.Record {
	name := p.DisplayName
	if name == "" {
		name, _, _ = strings.Cut(p.Email, "@")
	}
	return store.Record{
		"id":            p.UID,
		"name":          name,
		"email":         p.Email,
		"role":          role,
		"level":         1,
		"walletBalance": 0.0,
		"createdAt":     store.ServerTimestamp,
		"avatarUrl":     avatarURL,
	}
}

func (b *Binding) provision(ctx context.Context, gen uint64, principal *models.Principal) {
	b.set(Snapshot{Phase: PhaseProvisioning, Principal: principal})

	path := store.UserPath(principal.UID)
	rec := DefaultProfile(principal, b.opts.Roles(principal), b.opts.Avatar(principal.UID))
	go func() {
		err := b.store.Create(ctx, path, rec)
		var stored store.Record
		if err == nil {
			// The subscription may never see the create, so read it back.
			stored, err = b.store.GetOne(ctx, path)
		}
		b.loop.Post(func() { b.provisioned(gen, path, rec, stored, err) })
	}()
}

func (b *Binding) provisioned(gen uint64, path string, attempted, stored store.Record, err error) {
	if gen != b.gen || b.snap.Phase != PhaseProvisioning {
		return
	}
	principal := b.snap.Principal

	if err == nil && stored != nil {
		var profile models.UserProfile
		if err = store.Decode(stored, &profile); err == nil {
			b.set(Snapshot{Phase: PhaseReady, Principal: principal, Profile: &profile})
			return
		}
	}
	if err == nil {
		err = fmt.Errorf("reading provisioned profile %s: %w", path, models.ErrNotFound)
	}

	var permErr *models.PermissionError
	if !errors.As(err, &permErr) && errors.Is(err, models.ErrPermissionDenied) {
		permErr = models.NewPermissionError(path, models.OpCreate, attempted)
	}
	if permErr != nil {
		b.bus.Emit(events.TopicPermissionError, permErr)
		err = permErr
	} else {
		b.logger.Error("Failed to provision user profile",
			zap.String("uid", principal.UID),
			zap.Error(err))
	}
	b.set(Snapshot{Phase: PhaseError, Principal: principal, Err: err})
}

func (b *Binding) set(s Snapshot) {
	switch s.Phase {
	case PhaseReady, PhaseAnonymous, PhaseError:
		s.Loading = false
	default:
		s.Loading = true
	}
	b.snap = s
	if b.opts.OnChange != nil {
		b.opts.OnChange(s)
	}
}
