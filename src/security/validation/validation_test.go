package validation

import (
	"bytes"
	"errors"
	"testing"

	"github.com/emilienrk/capitalview-sub000/src/logger"
)

func init() {
	logger.InitLogger("error")
}

func TestValidateClientContentType(t *testing.T) {
	tests := []struct {
		contentType string
		wantErr     bool
	}{
		{"text/csv", false},
		{"TEXT/CSV", false},
		{"application/csv", false},
		{"application/vnd.ms-excel", false},
		{"text/plain", false},
		{"application/octet-stream", false},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", true},
		{"image/png", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateClientContentType(tt.contentType)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateClientContentType(%q) error = %v, wantErr %v", tt.contentType, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrValidationFailed) {
			t.Errorf("ValidateClientContentType(%q) error is not ErrValidationFailed: %v", tt.contentType, err)
		}
	}
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	csv := bytes.NewReader([]byte("User_ID,UTC_Time,Operation,Coin,Change\n1,2024-01-01 00:00:00,Deposit,BTC,1\n"))
	detected, err := ValidateFileContentByMagicBytes(csv)
	if err != nil {
		t.Fatalf("CSV content rejected: %v (detected %q)", err, detected)
	}
	if pos, _ := csv.Seek(0, 1); pos != 0 {
		t.Errorf("read pointer not reset, at %d", pos)
	}

	png := bytes.NewReader([]byte("\x89PNG\r\n\x1a\nrestofit"))
	if _, err := ValidateFileContentByMagicBytes(png); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("PNG content error = %v, want ErrValidationFailed", err)
	}

	if _, err := ValidateFileContentByMagicBytes(nil); err == nil {
		t.Error("nil file accepted")
	}
}

func TestSanitizers(t *testing.T) {
	if got := SanitizeForFormulaInjection("=SUM(A1)"); got == "=SUM(A1)" {
		t.Errorf("formula prefix not neutralized: %q", got)
	}
	if got := SanitizeForFormulaInjection("plain"); got != "plain" {
		t.Errorf("plain text altered: %q", got)
	}
	if got := SanitizeText("  hello\x00world\t "); got != "helloworld" {
		t.Errorf("SanitizeText = %q, want %q", got, "helloworld")
	}
}
