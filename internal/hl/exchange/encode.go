package exchange

import (
	"bytes"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// packer writes msgpack with a fixed key order. The action hash depends on
// the exact byte layout, so maps are never encoded through reflection.
type packer struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
	err error
}

func newPacker() *packer {
	p := &packer{}
	p.enc = msgpack.NewEncoder(&p.buf)
	return p
}

func (p *packer) mapLen(n int) {
	if p.err == nil {
		p.err = p.enc.EncodeMapLen(n)
	}
}

func (p *packer) arrayLen(n int) {
	if p.err == nil {
		p.err = p.enc.EncodeArrayLen(n)
	}
}

func (p *packer) str(s string) {
	if p.err == nil {
		p.err = p.enc.EncodeString(s)
	}
}

func (p *packer) integer(v int64) {
	if p.err == nil {
		p.err = p.enc.EncodeInt(v)
	}
}

func (p *packer) boolean(v bool) {
	if p.err == nil {
		p.err = p.enc.EncodeBool(v)
	}
}

func (p *packer) bytes() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.buf.Bytes(), nil
}

func EncodeOrderAction(action OrderAction) ([]byte, error) {
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}
	if len(action.Orders) == 0 {
		return nil, errors.New("action orders are required")
	}
	if action.Grouping == "" {
		action.Grouping = GroupingNone
	}
	p := newPacker()
	p.mapLen(3)
	p.str("type")
	p.str(action.Type)
	p.str("orders")
	p.arrayLen(len(action.Orders))
	for _, order := range action.Orders {
		if err := packOrderWire(p, order); err != nil {
			return nil, err
		}
	}
	p.str("grouping")
	p.str(action.Grouping)
	return p.bytes()
}

func EncodeCancelAction(action CancelAction) ([]byte, error) {
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}
	if len(action.Cancels) == 0 {
		return nil, errors.New("action cancels are required")
	}
	p := newPacker()
	p.mapLen(2)
	p.str("type")
	p.str(action.Type)
	p.str("cancels")
	p.arrayLen(len(action.Cancels))
	for _, cancel := range action.Cancels {
		p.mapLen(2)
		p.str("a")
		p.integer(int64(cancel.Asset))
		p.str("o")
		p.integer(cancel.OrderID)
	}
	return p.bytes()
}

func EncodeCancelByCloidAction(action CancelByCloidAction) ([]byte, error) {
	if len(action.Cancels) == 0 {
		return nil, errors.New("action cancels are required")
	}
	p := newPacker()
	p.mapLen(2)
	p.str("type")
	p.str("cancelByCloid")
	p.str("cancels")
	p.arrayLen(len(action.Cancels))
	for _, cancel := range action.Cancels {
		p.mapLen(2)
		p.str("asset")
		p.integer(int64(cancel.Asset))
		p.str("cloid")
		p.str(cancel.Cloid)
	}
	return p.bytes()
}

func EncodeUpdateLeverageAction(action UpdateLeverageAction) ([]byte, error) {
	if action.Leverage <= 0 {
		return nil, errors.New("leverage must be positive")
	}
	p := newPacker()
	p.mapLen(4)
	p.str("type")
	p.str("updateLeverage")
	p.str("asset")
	p.integer(int64(action.Asset))
	p.str("isCross")
	p.boolean(action.IsCross)
	p.str("leverage")
	p.integer(int64(action.Leverage))
	return p.bytes()
}

func packOrderWire(p *packer, order OrderWire) error {
	fields := 6
	if order.Cloid != "" {
		fields++
	}
	p.mapLen(fields)
	p.str("a")
	p.integer(int64(order.Asset))
	p.str("b")
	p.boolean(order.IsBuy)
	p.str("p")
	p.str(order.Price)
	p.str("s")
	p.str(order.Size)
	p.str("r")
	p.boolean(order.ReduceOnly)
	p.str("t")
	switch {
	case order.OrderType.Limit != nil:
		p.mapLen(1)
		p.str("limit")
		p.mapLen(1)
		p.str("tif")
		p.str(string(order.OrderType.Limit.Tif))
	case order.OrderType.Trigger != nil:
		trigger := order.OrderType.Trigger
		p.mapLen(1)
		p.str("trigger")
		p.mapLen(3)
		p.str("isMarket")
		p.boolean(trigger.IsMarket)
		p.str("triggerPx")
		p.str(trigger.TriggerPx)
		p.str("tpsl")
		p.str(trigger.Tpsl)
	default:
		return errors.New("order type requires limit or trigger")
	}
	if order.Cloid != "" {
		p.str("c")
		p.str(order.Cloid)
	}
	return p.err
}
