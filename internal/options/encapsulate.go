package options

import "sort"

// MaxSegmentSize is the largest value length the TLV encoder will
// place in one tag/length/value segment before splitting (RFC 2132's
// single-byte length field caps this at 255).
const MaxSegmentSize = 255

// DecodeDHCP parses a raw RFC-2132 option byte stream (the contents of
// a packet's options field, or the spilled-over file/sname fields
// once the overload option identifies them as option space) into a
// State, reassembling segmented values for the same tag into one
// logical value the way the source's option decoder concatenates
// same-tag runs.
func DecodeDHCP(raw []byte) (*State, error) {
	st := NewState()
	pending := make(map[uint8][]byte)
	i := 0
	for i < len(raw) {
		tag := raw[i]
		if tag == CodePad {
			i++
			continue
		}
		if tag == CodeEnd {
			break
		}
		if i+1 >= len(raw) {
			return st, errTruncated
		}
		n := int(raw[i+1])
		if i+2+n > len(raw) {
			return st, errTruncated
		}
		pending[tag] = append(pending[tag], raw[i+2:i+2+n]...)
		i += 2 + n
	}
	for tag, data := range pending {
		st.Set("dhcp", tag, &Cache{Data: data})
	}
	return st, nil
}

var errTruncated = decodeError("options: truncated option field")

type decodeError string

func (e decodeError) Error() string { return string(e) }

// EncodeResult is the output of Encapsulate: the main options-field
// bytes plus, when the overload mechanism was engaged, the bytes that
// must be written into the BOOTP file/sname fields instead.
type EncodeResult struct {
	Options     []byte
	FileField   []byte // non-nil iff overload used the file field
	SnameField  []byte // non-nil iff overload used the sname field
	Overloaded  bool
	Truncated   []uint8 // codes dropped under option-overflow, for logging only
}

// Encapsulate serializes a universe's cache entries to wire form,
// implementing spec §4.3's encoding rules: PRL-dictated order, TLV
// segmentation, the option-overload mechanism spilling into file/sname
// when the options region would overflow, and priority-ordered
// truncation (never an error) when even both overload fields can't
// hold everything.
//
// mainBudget/fileBudget/snameBudget are the number of bytes available
// in each region (the caller reserves room for the magic cookie, the
// message-type option, and the trailing END/padding elsewhere).
func Encapsulate(st *State, universe string, prl []uint8, mainBudget, fileBudget, snameBudget int) EncodeResult {
	order := orderedCodes(st, universe, prl)

	var res EncodeResult
	main := make([]byte, 0, mainBudget)
	var file, sname []byte
	target := &main
	budget := mainBudget
	usedFile, usedSname := false, false

	for idx, code := range order {
		c, _ := st.Get(universe, code)
		seg := defaultTLVEncode(code, c.Data)

		if len(*target)+len(seg) > budget {
			if target == &main && fileBudget > 0 {
				target = &file
				budget = fileBudget
				usedFile = true
			}
		}
		if len(*target)+len(seg) > budget && target == &file && snameBudget > 0 {
			target = &sname
			budget = snameBudget
			usedSname = true
		}
		if len(*target)+len(seg) > budget {
			// Option-overflow: stop including further (lower
			// priority, since order is priority-first) options
			// rather than erroring, per spec §7.
			res.Truncated = order[idx:]
			break
		}
		*target = append(*target, seg...)
	}

	if usedFile || usedSname {
		overloadVal := 0
		if usedFile {
			overloadVal |= OverloadFile
		}
		if usedSname {
			overloadVal |= OverloadSname
		}
		// The overload option itself must be present in main and is
		// accounted for by the caller's mainBudget headroom.
		main = append([]byte{CodeOptionOverload, 1, byte(overloadVal)}, main...)
		res.Overloaded = true
	}

	main = append(main, CodeEnd)
	res.Options = main
	if usedFile {
		res.FileField = file
	}
	if usedSname {
		res.SnameField = sname
	}
	return res
}

// orderedCodes produces the encoding order: PRL-named codes first (in
// the order the client listed them), then the remaining configured
// codes in defaultPriorityList order, then anything left over in
// ascending code order. This mirrors SelectOrderOrAll's semantics
// extended with the source's default_priority_list fallback.
func orderedCodes(st *State, universe string, prl []uint8) []uint8 {
	present := map[uint8]bool{}
	st.Each(universe, func(code uint8, _ *Cache) { present[code] = true })

	seen := map[uint8]bool{}
	var order []uint8

	for _, code := range prl {
		if present[code] && !seen[code] {
			order = append(order, code)
			seen[code] = true
		}
	}
	if universe == "dhcp" {
		for _, code := range defaultPriorityList {
			if present[code] && !seen[code] {
				order = append(order, code)
				seen[code] = true
			}
		}
	}
	var rest []uint8
	for code := range present {
		if !seen[code] {
			rest = append(rest, code)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	order = append(order, rest...)
	return order
}
