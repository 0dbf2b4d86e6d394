package archive

import (
	"errors"

	"github.com/roach88/archivist/internal/document"
)

// CurrentVersion reads the version counter of a live document.
func CurrentVersion(reg *Registration, doc document.Document) (int64, error) {
	v, err := doc.Int(reg.VersionField)
	if err != nil {
		reason := "version field is not an integer"
		if errors.Is(err, document.ErrMissingField) {
			reason = "version field is missing"
		}
		return 0, &Error{
			Code:     CodeSchema,
			Message:  reason,
			Kind:     reg.Kind,
			Identity: doc[document.IDField],
			Err:      err,
		}
	}
	return v, nil
}

// IdentityOf reads the identity of a live document.
func IdentityOf(reg *Registration, doc document.Document) (any, error) {
	id, ok := doc[document.IDField]
	if !ok || id == nil || id == "" {
		return nil, &Error{Code: CodeSchema, Message: "document has no identity", Kind: reg.Kind}
	}
	return id, nil
}

// tagOf reads the version tag of an archive document.
func tagOf(reg *Registration, snap document.Document) (int64, error) {
	v, err := snap.Int(reg.VersionField)
	if err != nil {
		return 0, &Error{
			Code:     CodeSchema,
			Message:  "archive entry has no version tag",
			Kind:     reg.Kind,
			Identity: snap[IdentityField],
			Err:      err,
		}
	}
	return v, nil
}
