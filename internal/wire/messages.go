// Package wire is the binary client/gateway protocol: fixed-width headers
// followed by a small number of length-prefixed strings, carrying order
// placement, cancellation, and execution reports for lot-based CLOB orders.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"fenrir/internal/common"
	"fenrir/internal/market"
	"fenrir/internal/matching"
	"fenrir/internal/orderbook"
)

func orderbookKey(hi, lo uint64) orderbook.Key { return orderbook.Key{Hi: hi, Lo: lo} }

var (
	ErrInvalidMessageType = errors.New("wire: invalid message type")
	ErrMessageTooShort    = errors.New("wire: message too short for declared field lengths")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	CancelAll
)

type ReportMessageType uint8

const (
	ExecutionReport ReportMessageType = iota
	OutReport
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

const (
	BaseMessageHeaderLen = 2

	// NewOrderMessage fixed header, before the trailing market/owner names:
	// side(1) + kind(1) + postType(1) + selfTrade(1) + takeOnly(1) +
	// priceLots(8) + priceOffsetLots(8) + pegLimit(8) + maxBaseLots(8) +
	// maxQuoteLots(8) + clientOrderID(8) + timeInForce(2) + marketLen(1) +
	// ownerLen(1).
	NewOrderMessageHeaderLen = 1 + 1 + 1 + 1 + 1 + 8 + 8 + 8 + 8 + 8 + 8 + 2 + 1 + 1

	// CancelOrderMessage fixed header: keyHi(8) + keyLo(8) + tree(1) +
	// marketLen(1) + ownerLen(1).
	CancelOrderMessageHeaderLen = 8 + 8 + 1 + 1 + 1

	// CancelAllMessage fixed header: hasSideFilter(1) + side(1) + limit(2) +
	// marketLen(1) + ownerLen(1).
	CancelAllMessageHeaderLen = 1 + 1 + 2 + 1 + 1
)

type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

// ParseMessage dispatches on the leading 2-byte type tag.
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case CancelAll:
		return parseCancelAll(body)
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// NewOrderMessage carries everything matching.Order needs plus the routing
// (market, owner) the core itself is agnostic to.
type NewOrderMessage struct {
	BaseMessage
	Market                    string
	Owner                     string
	Side                      common.Side
	Kind                      common.OrderParamsKind
	PostType                  common.PostOrderType
	SelfTradeBehavior         common.SelfTradeBehavior
	TakeOnly                  bool
	PriceLots                 int64
	PriceOffsetLots           int64
	PegLimit                  int64
	MaxBaseLots               int64
	MaxQuoteLotsIncludingFees int64
	ClientOrderID             uint64
	TimeInForce               uint16
}

// Order builds the matching.Order this message describes.
func (m *NewOrderMessage) Order() matching.Order {
	return matching.Order{
		Side:                      m.Side,
		MaxBaseLots:               m.MaxBaseLots,
		MaxQuoteLotsIncludingFees: m.MaxQuoteLotsIncludingFees,
		ClientOrderID:             m.ClientOrderID,
		TimeInForce:               m.TimeInForce,
		SelfTradeBehavior:         m.SelfTradeBehavior,
		Params: common.OrderParams{
			Kind:            m.Kind,
			PriceLots:       m.PriceLots,
			OrderType:       m.PostType,
			PriceOffsetLots: m.PriceOffsetLots,
			PegLimit:        m.PegLimit,
		},
	}
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.Side = common.Side(msg[0])
	m.Kind = common.OrderParamsKind(msg[1])
	m.PostType = common.PostOrderType(msg[2])
	m.SelfTradeBehavior = common.SelfTradeBehavior(msg[3])
	m.TakeOnly = msg[4] != 0
	m.PriceLots = int64(binary.BigEndian.Uint64(msg[5:13]))
	m.PriceOffsetLots = int64(binary.BigEndian.Uint64(msg[13:21]))
	m.PegLimit = int64(binary.BigEndian.Uint64(msg[21:29]))
	m.MaxBaseLots = int64(binary.BigEndian.Uint64(msg[29:37]))
	m.MaxQuoteLotsIncludingFees = int64(binary.BigEndian.Uint64(msg[37:45]))
	m.ClientOrderID = binary.BigEndian.Uint64(msg[45:53])
	m.TimeInForce = binary.BigEndian.Uint16(msg[53:55])
	marketLen := uint8(msg[55])
	ownerLen := uint8(msg[56])

	expected := NewOrderMessageHeaderLen + int(marketLen) + int(ownerLen)
	if len(msg) < expected {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	rest := msg[NewOrderMessageHeaderLen:]
	m.Market = string(rest[:marketLen])
	m.Owner = string(rest[marketLen : marketLen+ownerLen])
	return m, nil
}

// CancelOrderMessage identifies one resting order by its book key.
type CancelOrderMessage struct {
	BaseMessage
	Market string
	Owner  string
	KeyHi  uint64
	KeyLo  uint64
	Tree   common.BookSideOrderTree
}

func (m *CancelOrderMessage) OrderID() matching.OrderID {
	return matching.OrderID{Key: orderbookKey(m.KeyHi, m.KeyLo), Tree: m.Tree}
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	m.KeyHi = binary.BigEndian.Uint64(msg[0:8])
	m.KeyLo = binary.BigEndian.Uint64(msg[8:16])
	m.Tree = common.BookSideOrderTree(msg[16])
	marketLen := uint8(msg[17])
	ownerLen := uint8(msg[18])

	expected := CancelOrderMessageHeaderLen + int(marketLen) + int(ownerLen)
	if len(msg) < expected {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	rest := msg[CancelOrderMessageHeaderLen:]
	m.Market = string(rest[:marketLen])
	m.Owner = string(rest[marketLen : marketLen+ownerLen])
	return m, nil
}

// CancelAllMessage requests cancellation of up to Limit resting orders,
// optionally restricted to one side.
type CancelAllMessage struct {
	BaseMessage
	Market        string
	Owner         string
	HasSideFilter bool
	Side          common.Side
	Limit         uint16
}

func parseCancelAll(msg []byte) (CancelAllMessage, error) {
	if len(msg) < CancelAllMessageHeaderLen {
		return CancelAllMessage{}, ErrMessageTooShort
	}
	m := CancelAllMessage{BaseMessage: BaseMessage{TypeOf: CancelAll}}
	m.HasSideFilter = msg[0] != 0
	m.Side = common.Side(msg[1])
	m.Limit = binary.BigEndian.Uint16(msg[2:4])
	marketLen := uint8(msg[4])
	ownerLen := uint8(msg[5])

	expected := CancelAllMessageHeaderLen + int(marketLen) + int(ownerLen)
	if len(msg) < expected {
		return CancelAllMessage{}, ErrMessageTooShort
	}
	rest := msg[CancelAllMessageHeaderLen:]
	m.Market = string(rest[:marketLen])
	m.Owner = string(rest[marketLen : marketLen+ownerLen])
	return m, nil
}

// Report is the gateway's response to a NewOrder/CancelOrder/CancelAll
// request: a fixed header carrying the report type, the order-id key and
// the result amounts, followed by an optional error string.
type Report struct {
	MessageType           ReportMessageType
	OrderIDHi, OrderIDLo  uint64
	HasOrderID            bool
	TotalBaseLotsTaken    int64
	TotalQuoteLotsTaken   int64
	TakerFeesNative       int64
	MakerFeesLockedNative int64
	ReferrerAmountNative  int64
	PostedBaseNative      int64
	PostedQuoteNative     int64
	ErrStr                string
}

const reportFixedHeaderLen = 1 + 8 + 8 + 1 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 4

// Serialize converts the report to its wire form.
func (r *Report) Serialize() []byte {
	errBytes := []byte(r.ErrStr)
	buf := make([]byte, reportFixedHeaderLen+len(errBytes))
	buf[0] = byte(r.MessageType)
	binary.BigEndian.PutUint64(buf[1:9], r.OrderIDHi)
	binary.BigEndian.PutUint64(buf[9:17], r.OrderIDLo)
	if r.HasOrderID {
		buf[17] = 1
	}
	binary.BigEndian.PutUint64(buf[18:26], uint64(r.TotalBaseLotsTaken))
	binary.BigEndian.PutUint64(buf[26:34], uint64(r.TotalQuoteLotsTaken))
	binary.BigEndian.PutUint64(buf[34:42], uint64(r.TakerFeesNative))
	binary.BigEndian.PutUint64(buf[42:50], uint64(r.MakerFeesLockedNative))
	binary.BigEndian.PutUint64(buf[50:58], uint64(r.ReferrerAmountNative))
	binary.BigEndian.PutUint64(buf[58:66], uint64(r.PostedBaseNative))
	binary.BigEndian.PutUint64(buf[66:74], uint64(r.PostedQuoteNative))
	binary.BigEndian.PutUint32(buf[74:78], uint32(len(errBytes)))
	copy(buf[reportFixedHeaderLen:], errBytes)
	return buf
}

// ReportFromOrderResult builds an ExecutionReport from a successful
// matching.OrderResult, or an ErrorReport if err is non-nil.
func ReportFromOrderResult(res matching.OrderResult, err error) Report {
	if err != nil {
		return Report{MessageType: ErrorReport, ErrStr: fmt.Sprintf("%v", err)}
	}
	r := Report{
		MessageType:           ExecutionReport,
		TotalBaseLotsTaken:    res.TotalBaseLotsTaken,
		TotalQuoteLotsTaken:   res.TotalQuoteLotsTaken,
		TakerFeesNative:       res.TakerFeesNative,
		MakerFeesLockedNative: res.MakerFeesLockedNative,
		ReferrerAmountNative:  res.ReferrerAmountNative,
		PostedBaseNative:      res.PostedBaseNative,
		PostedQuoteNative:     res.PostedQuoteNative,
	}
	if res.OrderID != nil {
		r.HasOrderID = true
		r.OrderIDHi = res.OrderID.Key.Hi
		r.OrderIDLo = res.OrderID.Key.Lo
	}
	return r
}

// ReportFromEvent builds an OutReport/ExecutionReport line for a crank to
// forward to an owner once it applies a market.Event from consume_events.
func ReportFromEvent(e market.Event) Report {
	if e.Type == market.EventFill {
		return Report{MessageType: ExecutionReport, TotalBaseLotsTaken: e.Fill.Quantity, TotalQuoteLotsTaken: e.Fill.Quantity * e.Fill.PriceLots}
	}
	return Report{MessageType: OutReport, TotalBaseLotsTaken: e.Out.Quantity}
}
