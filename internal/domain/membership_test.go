package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateDeposit(t *testing.T) {
	tests := []struct {
		name    string
		deposit decimal.Decimal
		wantErr bool
	}{
		{
			name:    "Exactly the minimum should pass",
			deposit: decimal.RequireFromString("0.1"),
			wantErr: false,
		},
		{
			name:    "Above the minimum should pass",
			deposit: decimal.NewFromInt(3),
			wantErr: false,
		},
		{
			name:    "Just below the minimum should fail",
			deposit: decimal.RequireFromString("0.099999999999999999"),
			wantErr: true,
		},
		{
			name:    "Zero deposit should fail",
			deposit: decimal.Zero,
			wantErr: true,
		},
		{
			name:    "Negative deposit should fail",
			deposit: decimal.NewFromInt(-1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeposit(tt.deposit, DefaultMinimumDeposit)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInsufficientDeposit)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDeposit_ZeroMinimumStillRejectsZero(t *testing.T) {
	assert.ErrorIs(t, ValidateDeposit(decimal.Zero, decimal.Zero), ErrInsufficientDeposit)
	assert.NoError(t, ValidateDeposit(decimal.RequireFromString("0.000001"), decimal.Zero))
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("0.5")))
	assert.ErrorIs(t, ValidateAmount(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.NewFromInt(-2)), ErrInvalidAmount)
}

func TestParseAccount(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Account
		wantErr bool
	}{
		{name: "Plain name", raw: "alice", want: "alice"},
		{name: "Surrounding whitespace is trimmed", raw: "  bob \n", want: "bob"},
		{name: "Hex address is lower-cased", raw: "0xAbCdEF0123", want: "0xabcdef0123"},
		{name: "Upper-case prefix is normalized", raw: "0XABCD", want: "0xabcd"},
		{name: "Empty account fails", raw: "", wantErr: true},
		{name: "Whitespace only fails", raw: "   ", wantErr: true},
		{name: "Inner whitespace fails", raw: "al ice", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAccount(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAccount)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
