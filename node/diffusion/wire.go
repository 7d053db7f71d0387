package diffusion

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"tally"
)

// Peer messages travel as a protowire envelope around a method-specific
// body. The envelope pins sender identity and protocol version so every
// handler can enforce the version floor without generated message types.
//
//	envelope:
//	  1: version (varint)
//	  2: from    (bytes, node name)
//	  3: body    (bytes)
//
//	tip body:
//	  1: hash    (bytes, 32)
//	  2: slot    (varint)
//	  3: height  (varint)
//
//	block body:
//	  1: parent  (bytes, 32)
//	  2: slot    (varint)
//	  3: height  (varint)
//	  4: payload (bytes)
type envelope struct {
	Version uint32
	From    string
	Body    []byte
}

func appendEnvelope(b []byte, env envelope) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(env.Version))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(env.From))
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, env.Body)
	return b
}

func parseEnvelope(data []byte) (envelope, error) {
	var env envelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return envelope{}, fmt.Errorf("envelope tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return envelope{}, fmt.Errorf("envelope version: %w", protowire.ParseError(n))
			}
			env.Version = uint32(v)
			data = data[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return envelope{}, fmt.Errorf("envelope from: %w", protowire.ParseError(n))
			}
			env.From = string(v)
			data = data[n:]
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return envelope{}, fmt.Errorf("envelope body: %w", protowire.ParseError(n))
			}
			env.Body = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return envelope{}, fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return env, nil
}

func appendTip(b []byte, tip tally.Tip) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, tip.Hash[:])
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, tip.Slot)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, tip.Height)
	return b
}

func parseTip(data []byte) (tally.Tip, error) {
	var tip tally.Tip
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return tally.Tip{}, fmt.Errorf("tip tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return tally.Tip{}, fmt.Errorf("tip hash: %w", protowire.ParseError(n))
			}
			if len(v) != len(tip.Hash) {
				return tally.Tip{}, fmt.Errorf("tip hash: %d bytes, want %d", len(v), len(tip.Hash))
			}
			copy(tip.Hash[:], v)
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return tally.Tip{}, fmt.Errorf("tip slot: %w", protowire.ParseError(n))
			}
			tip.Slot = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return tally.Tip{}, fmt.Errorf("tip height: %w", protowire.ParseError(n))
			}
			tip.Height = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return tally.Tip{}, fmt.Errorf("tip field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return tip, nil
}

func appendBlock(b []byte, blk tally.Block) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, blk.Header.Parent[:])
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, blk.Header.Slot)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, blk.Header.Height)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, blk.Payload)
	return b
}

func parseBlock(data []byte) (tally.Block, error) {
	var blk tally.Block
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return tally.Block{}, fmt.Errorf("block tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return tally.Block{}, fmt.Errorf("block parent: %w", protowire.ParseError(n))
			}
			if len(v) != len(blk.Header.Parent) {
				return tally.Block{}, fmt.Errorf("block parent: %d bytes, want %d", len(v), len(blk.Header.Parent))
			}
			copy(blk.Header.Parent[:], v)
			data = data[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return tally.Block{}, fmt.Errorf("block slot: %w", protowire.ParseError(n))
			}
			blk.Header.Slot = v
			data = data[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return tally.Block{}, fmt.Errorf("block height: %w", protowire.ParseError(n))
			}
			blk.Header.Height = v
			data = data[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return tally.Block{}, fmt.Errorf("block payload: %w", protowire.ParseError(n))
			}
			blk.Payload = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return tally.Block{}, fmt.Errorf("block field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return blk, nil
}
