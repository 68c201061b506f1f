package domain

import "fmt"

// RefKind discriminates the identity space a parent reference lives in.
type RefKind int

const (
	RefNone RefKind = iota
	RefPermanent
	RefRemote
	RefTemp
)

// Ref points at a WBS item in exactly one of three identity spaces: the
// locally-owned permanent id, the remote row id, or a UI-issued temporary id.
// Keeping the spaces in one sum type (instead of overloading a string field)
// means they can never be silently confused.
type Ref struct {
	Kind  RefKind
	ID    string // permanent or temporary id
	RowID int64  // remote row id
}

func NoRef() Ref                 { return Ref{Kind: RefNone} }
func PermanentRef(id string) Ref { return Ref{Kind: RefPermanent, ID: id} }
func RemoteRef(rowID int64) Ref  { return Ref{Kind: RefRemote, RowID: rowID} }
func TempRef(id string) Ref      { return Ref{Kind: RefTemp, ID: id} }

func (r Ref) IsZero() bool { return r.Kind == RefNone }

// Key returns a string form usable as a lookup key across identity spaces.
func (r Ref) Key() string {
	switch r.Kind {
	case RefPermanent:
		return "p:" + r.ID
	case RefRemote:
		return fmt.Sprintf("r:%d", r.RowID)
	case RefTemp:
		return "t:" + r.ID
	}
	return ""
}

func (r Ref) String() string {
	if r.IsZero() {
		return "<none>"
	}
	return r.Key()
}
