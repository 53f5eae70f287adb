package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

func TestAutomationGate_CommentScope(t *testing.T) {
	ctx := context.Background()

	t.Run("no rules defaults to enabled", func(t *testing.T) {
		g := &AutomationGate{DB: newTestDB(t), Log: zerolog.Nop()}
		got, err := g.ShouldProcess(ctx, GateRequest{Context: domain.ContextComment, UserID: "u1", SocialAccountID: "a1"})
		if err != nil {
			t.Fatalf("ShouldProcess: %v", err)
		}
		want := GateResult{ShouldReply: true, Reason: GateDefaultEnabled, MatchedRules: []string{}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("(-want +got):\n%s", diff)
		}
	})

	t.Run("account rules override user rules", func(t *testing.T) {
		db := newTestDB(t)
		seedRules(t, db, domain.MonitoringRules{ID: "r-user", AIEnabledForComments: true})
		seedRules(t, db, domain.MonitoringRules{ID: "r-acc", SocialAccountID: strPtr("a1"), AIEnabledForComments: false})
		g := &AutomationGate{DB: db, Log: zerolog.Nop()}

		got, _ := g.ShouldProcess(ctx, GateRequest{Context: domain.ContextComment, UserID: "u1", SocialAccountID: "a1"})
		want := GateResult{ShouldReply: false, Reason: GateCommentsDisabled, MatchedRules: []string{"monitoring_rules:account:r-acc"}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("account scope (-want +got):\n%s", diff)
		}

		got, _ = g.ShouldProcess(ctx, GateRequest{Context: domain.ContextComment, UserID: "u1", SocialAccountID: "a2"})
		want = GateResult{ShouldReply: true, Reason: GateCommentsEnabled, MatchedRules: []string{"monitoring_rules:user:r-user"}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("user scope (-want +got):\n%s", diff)
		}
	})
}

func TestAutomationGate_LookupFailure(t *testing.T) {
	ctx := context.Background()
	broken := func(t *testing.T) *AutomationGate {
		db := newTestDB(t)
		if err := db.Migrator().DropTable(&domain.MonitoringRules{}); err != nil {
			t.Fatalf("drop: %v", err)
		}
		return &AutomationGate{DB: db, Log: zerolog.Nop()}
	}

	t.Run("fail open", func(t *testing.T) {
		g := broken(t)
		got, err := g.ShouldProcess(ctx, GateRequest{Context: domain.ContextComment, UserID: "u1", SocialAccountID: "a1"})
		if err != nil {
			t.Fatalf("ShouldProcess: %v", err)
		}
		if !got.ShouldReply || got.Reason != GateLookupFailedOpen {
			t.Fatalf("got %+v, want should_reply with fail-open reason", got)
		}
	})

	t.Run("fail closed", func(t *testing.T) {
		g := broken(t)
		g.OnLookupError = FailClosed
		got, _ := g.ShouldProcess(ctx, GateRequest{Context: domain.ContextComment, UserID: "u1", SocialAccountID: "a1"})
		if got.ShouldReply || got.Reason != GateLookupFailedClose {
			t.Fatalf("got %+v, want blocked", got)
		}
	})
}

func TestAutomationGate_ChatScope(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	for _, c := range []domain.Conversation{
		{ID: "off", UserID: "u1", AIMode: domain.AIModeOff},
		{ID: "auto", UserID: "u1", AIMode: domain.AIModeAuto},
		{ID: "auto2", UserID: "u2", AIMode: domain.AIModeAuto},
	} {
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("seed conversation: %v", err)
		}
	}
	if err := db.Create(&domain.AISettings{UserID: "u2", IsActive: false, ChatsEnabled: true}).Error; err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	g := &AutomationGate{DB: db, Log: zerolog.Nop()}

	cases := []struct {
		user, conv string
		reply      bool
		reason     string
	}{
		{"u1", "missing", false, GateNoConversation},
		{"u1", "off", false, GateConversationOff},
		{"u1", "auto", true, GateChatEnabled},
		{"u2", "auto2", false, GateAIInactive},
	}
	for _, tc := range cases {
		got, err := g.ShouldProcess(ctx, GateRequest{Context: domain.ContextChat, UserID: tc.user, ConversationID: tc.conv})
		if err != nil {
			t.Fatalf("%s: %v", tc.conv, err)
		}
		if got.ShouldReply != tc.reply || got.Reason != tc.reason {
			t.Fatalf("%s: got %+v, want (%v, %q)", tc.conv, got, tc.reply, tc.reason)
		}
	}
}

func TestAutomationGate_InvalidContext(t *testing.T) {
	g := &AutomationGate{Log: zerolog.Nop()}
	if _, err := g.ShouldProcess(context.Background(), GateRequest{Context: "email"}); !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("want ErrInvalidContext, got %v", err)
	}
}
