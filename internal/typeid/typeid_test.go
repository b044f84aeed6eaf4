package typeid

import (
	"strings"
	"testing"
)

func TestNewIDsCarryPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		gen    func() string
	}{
		{PrefixPiece, NewPieceID},
		{PrefixAsset, NewAssetID},
		{PrefixJob, NewJobID},
	}
	for _, tt := range tests {
		id := tt.gen()
		if !strings.HasPrefix(id, tt.prefix+"_") {
			t.Errorf("id %q lacks prefix %q", id, tt.prefix)
		}
		if err := Validate(id, tt.prefix); err != nil {
			t.Errorf("Validate(%q): %v", id, err)
		}
	}
}

func TestValidateRejectsWrongPrefix(t *testing.T) {
	if err := Validate(NewAssetID(), PrefixPiece); err == nil {
		t.Error("expected prefix mismatch error")
	}
	if err := Validate("not-a-typeid", PrefixPiece); err == nil {
		t.Error("expected parse error")
	}
}
