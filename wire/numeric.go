package wire

import (
	"strconv"
)

// NumericString carries a non-negative integer that is stringified on the
// wire, the same convention the source JS/TS side uses for bigint-like
// values to dodge float64 precision loss. Internally it behaves as a plain
// uint64.
type NumericString uint64

func (n NumericString) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatUint(uint64(n), 10)), nil
}

func (n *NumericString) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		// Tolerate a bare JSON number too, for producers that didn't stringify.
		v, perr := strconv.ParseUint(string(b), 10, 64)
		if perr != nil {
			return err
		}
		*n = NumericString(v)
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*n = NumericString(v)
	return nil
}
