package services

import (
	"context"
	"testing"
	"time"
)

func TestNew_SharesResolverAndAppliesOptions(t *testing.T) {
	st := newEnv(t).store
	svc := New(st, &fakeOTP{}, &fakeHost{url: "https://i.ibb.co/x.png"}, Options{
		ExternalSessionPrefix: "sess_",
		WelcomeText:           "hi there",
		MaxMessageRunes:       10,
		IdempotencyTTL:        time.Hour,
	})

	if svc.Chat.Resolver != svc.Resolver || svc.Profiles.Resolver != svc.Resolver || svc.Prefs.Resolver != svc.Resolver {
		t.Fatalf("services do not share one resolver")
	}
	if !svc.Resolver.IsExternal("sess_abc") || svc.Resolver.IsExternal("user_abc") {
		t.Fatalf("external prefix not applied")
	}
	if svc.Chat.welcome() != "hi there" || svc.Chat.IdempotencyTTL != time.Hour {
		t.Fatalf("chat options not applied: %+v", svc.Chat)
	}

	if _, err := svc.Profiles.UpsertGoogleUser(context.Background(), GoogleUserInput{
		ClerkSessionID: "sess_g", Email: "g@example.com", FirstName: "G",
	}); err != nil {
		t.Fatalf("UpsertGoogleUser: %v", err)
	}
	_, err := svc.Chat.SendUserMessageOnce(context.Background(), "sess_g", "this is too long", "")
	wantErr(t, err, ErrMessageTooLong)
}
