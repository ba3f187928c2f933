package token

import (
	"testing"

	energyledger "github.com/parsedata/energyledger"
	"github.com/parsedata/energyledger/errors"
)

var (
	alice  = energyledger.NewAddress([]byte("alice"))
	issuer = energyledger.NewAddress([]byte("issuer"))
)

func TestRecordValidate(t *testing.T) {
	cases := map[string]struct {
		rec     Record
		wantErr *errors.Error
	}{
		"valid record": {
			rec: NewRecord("EnergyToken", 100, alice, issuer),
		},
		"valid account scoped record": {
			rec: NewRecord("EnergyToken", 1, alice, issuer).WithAccount("acc-1"),
		},
		"missing id": {
			rec:     Record{TokenType: "EnergyToken", Quantity: 1, Owner: alice, Issuer: issuer},
			wantErr: errors.ErrInput,
		},
		"bad token type": {
			rec:     NewRecord("e$", 1, alice, issuer),
			wantErr: errors.ErrInput,
		},
		"zero quantity": {
			rec:     NewRecord("EnergyToken", 0, alice, issuer),
			wantErr: errors.ErrInput,
		},
		"over max quantity": {
			rec:     NewRecord("EnergyToken", MaxQuantity+1, alice, issuer),
			wantErr: errors.ErrOverflow,
		},
		"missing owner": {
			rec:     NewRecord("EnergyToken", 1, nil, issuer),
			wantErr: errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.rec.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %+v", err)
				}
			} else if !tc.wantErr.Is(err) {
				t.Fatalf("want %v, got %+v", tc.wantErr, err)
			}
		})
	}
}

func TestNewRecordUniqueIDs(t *testing.T) {
	a := NewRecord("EnergyToken", 1, alice, issuer)
	b := NewRecord("EnergyToken", 1, alice, issuer)
	if a.ID == b.ID {
		t.Fatal("record ids must be unique")
	}
}

func TestRecordsTotal(t *testing.T) {
	rs := Records{
		NewRecord("EnergyToken", 30, alice, issuer),
		NewRecord("EnergyToken", 12, alice, issuer),
	}
	total, err := rs.Total()
	if err != nil {
		t.Fatalf("total: %+v", err)
	}
	if total != 42 {
		t.Fatalf("want 42, got %d", total)
	}

	over := Records{
		Record{ID: "a", TokenType: "EnergyToken", Quantity: ^uint64(0), Owner: alice, Issuer: issuer},
		Record{ID: "b", TokenType: "EnergyToken", Quantity: 1, Owner: alice, Issuer: issuer},
	}
	if _, err := over.Total(); !errors.ErrOverflow.Is(err) {
		t.Fatalf("want overflow, got %+v", err)
	}
}

func TestOwnerFilterMatches(t *testing.T) {
	bob := energyledger.NewAddress([]byte("bob"))
	raw := NewRecord("EnergyToken", 5, alice, issuer)
	scoped := NewRecord("EnergyToken", 5, bob, issuer).WithAccount("acc-1")

	cases := map[string]struct {
		filter OwnerFilter
		rec    Record
		want   bool
	}{
		"raw owner matches":             {OwnerFilter{Owner: alice}, raw, true},
		"raw owner other key":           {OwnerFilter{Owner: bob}, raw, false},
		"raw filter skips account recs": {OwnerFilter{Owner: bob}, scoped, false},
		"account filter matches":        {OwnerFilter{Account: "acc-1"}, scoped, true},
		"account filter other account":  {OwnerFilter{Account: "acc-2"}, scoped, false},
		"account filter ignores key":    {OwnerFilter{Account: "acc-1", Owner: alice}, scoped, true},
		"zero filter":                   {OwnerFilter{}, raw, false},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if got := tc.filter.Matches(tc.rec); got != tc.want {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}
