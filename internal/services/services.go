package services

import "time"

// Options tunes the services built by New. Zero values select defaults.
type Options struct {
	ExternalSessionPrefix string
	WelcomeText           string
	MaxMessageRunes       int
	IdempotencyTTL        time.Duration
	MaxImagePixels        int64
}

// Services bundles the application services over one store. The HTTP
// server and the admin console both build theirs with New so that every
// consumer shares one identity resolver.
type Services struct {
	Resolver *IdentityResolver
	Sessions *SessionService
	Profiles *ProfileService
	Prefs    *PreferenceService
	Chat     *ChatService
}

// New wires the services. otp and images may be nil for consumers that
// never send codes or upload images (the admin console).
func New(store Store, otp OTPProvider, images ImageHost, opts Options) *Services {
	resolver := &IdentityResolver{Sessions: store, Users: store, ExternalPrefix: opts.ExternalSessionPrefix}
	prefs := &PreferenceService{Prefs: store, Resolver: resolver}
	profiles := &ProfileService{Users: store, Sessions: store, Prefs: prefs, Resolver: resolver}
	return &Services{
		Resolver: resolver,
		Sessions: &SessionService{Sessions: store, Users: store, Profiles: profiles, OTP: otp},
		Profiles: profiles,
		Prefs:    prefs,
		Chat: &ChatService{
			Messages:       store,
			Idem:           store,
			Resolver:       resolver,
			Images:         images,
			WelcomeText:    opts.WelcomeText,
			MaxTextRunes:   opts.MaxMessageRunes,
			IdempotencyTTL: opts.IdempotencyTTL,
			MaxImagePixels: opts.MaxImagePixels,
		},
	}
}
