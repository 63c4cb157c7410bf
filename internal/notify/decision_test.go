package notify

import (
	"testing"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/presence"
)

func TestShouldNotify(t *testing.T) {
	cases := []struct {
		name string
		kind model.ConversationKind
		id   string
		snap presence.Snapshot
		want bool
	}{
		{
			name: "foreground with conversation open suppresses",
			kind: model.KindIndividual, id: "alice",
			snap: presence.Snapshot{Foreground: true, OpenKind: model.KindIndividual, OpenID: "alice"},
			want: false,
		},
		{
			name: "foreground with other conversation open notifies",
			kind: model.KindIndividual, id: "alice",
			snap: presence.Snapshot{Foreground: true, OpenKind: model.KindIndividual, OpenID: "carol"},
			want: true,
		},
		{
			name: "background with conversation open notifies",
			kind: model.KindIndividual, id: "alice",
			snap: presence.Snapshot{Foreground: false, OpenKind: model.KindIndividual, OpenID: "alice"},
			want: true,
		},
		{
			name: "background with nothing open notifies",
			kind: model.KindGroup, id: "g1",
			snap: presence.Snapshot{},
			want: true,
		},
		{
			name: "foreground group open suppresses group",
			kind: model.KindGroup, id: "g1",
			snap: presence.Snapshot{Foreground: true, OpenKind: model.KindGroup, OpenID: "g1"},
			want: false,
		},
		{
			name: "same id different kind notifies",
			kind: model.KindGroup, id: "alice",
			snap: presence.Snapshot{Foreground: true, OpenKind: model.KindIndividual, OpenID: "alice"},
			want: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldNotify(tc.kind, tc.id, tc.snap); got != tc.want {
				t.Fatalf("ShouldNotify = %v, want %v", got, tc.want)
			}
		})
	}
}
