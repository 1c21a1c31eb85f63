package profile

import (
	"context"
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	if err := Validate(Profile{UserID: "u1", GamePlayerID: "51234"}); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if err := Validate(Profile{UserID: "u1", GamePlayerID: "  "}); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("want ErrIncomplete, got %v", err)
	}
}

func TestMemoryGetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Profile{UserID: "u1", Skill: 1200})

	if _, err := m.Get(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	_ = m.Put(ctx, Profile{UserID: "u2", Skill: 900})
	p, err := m.Get(ctx, "u2")
	if err != nil || p.Skill != 900 {
		t.Fatalf("got %+v %v", p, err)
	}
}
