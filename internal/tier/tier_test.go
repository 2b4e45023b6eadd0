package tier

import (
	"testing"

	"github.com/sweatpact/sweatpact/internal/model"
)

func TestStoreSource(t *testing.T) {
	src := StoreSource{}

	got, err := src.Resolve(&model.User{SubscriptionTier: model.TierElite})
	if err != nil {
		t.Fatal(err)
	}
	if got != model.TierElite {
		t.Errorf("tier = %q, want ELITE", got)
	}

	got, err = src.Resolve(&model.User{})
	if err != nil {
		t.Fatal(err)
	}
	if got != model.TierFree {
		t.Errorf("tier = %q, want FREE fallback", got)
	}
}
