package h264nal

import (
	goerrors "errors"

	"github.com/pkg/errors"

	"github.com/vidtools/h264nal/bits"
)

// Parse failure kinds. Every error returned by a Parser method wraps exactly
// one of these; use errors.Cause (or errors.Is) to recover the kind.
var (
	// ErrNotEnoughBytes indicates the byte or bit budget was exhausted for a
	// requested read.
	ErrNotEnoughBytes = goerrors.New("h264nal: not enough bytes")

	// ErrStartCode indicates the bytes at an offset did not form an Annex B
	// start code.
	ErrStartCode = goerrors.New("h264nal: invalid start code")

	// ErrUnknownFormat indicates framing could not be established as either
	// byte-stream or AVC.
	ErrUnknownFormat = goerrors.New("h264nal: unknown stream format")

	// ErrUnimplemented indicates the payload requires functionality the
	// parser does not provide.
	ErrUnimplemented = goerrors.New("h264nal: unimplemented")

	// ErrParse indicates a semantic precondition failed, e.g. the forbidden
	// zero bit was set or a slice referenced an unknown parameter set.
	ErrParse = goerrors.New("h264nal: parse error")
)

// wrapBits converts a bits package error to the corresponding parse failure
// kind and annotates it with the name of the syntax element being read.
func wrapBits(err error, element string) error {
	switch errors.Cause(err) {
	case bits.ErrNotEnoughBits:
		return errors.Wrapf(ErrNotEnoughBytes, "reading %s: %v", element, err)
	default:
		return errors.Wrapf(ErrParse, "reading %s: %v", element, err)
	}
}
