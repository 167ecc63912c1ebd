package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/wire"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange gateway")
	owner := flag.String("owner", "", "Owner name (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'cancel-all']")

	market := flag.String("market", "BASE-QUOTE", "Market name")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	kindStr := flag.String("kind", "fixed", "Order kind: 'market', 'ioc', 'fok', 'fixed', 'pegged'")
	postStr := flag.String("post", "limit", "Post type (fixed/pegged only): 'limit', 'post-only', 'post-only-slide'")
	priceLots := flag.Int64("price", 100, "Limit price in price lots")
	priceOffsetLots := flag.Int64("price-offset", 0, "Peg offset in price lots (pegged only)")
	pegLimit := flag.Int64("peg-limit", -1, "Worst allowable price for a pegged order, -1 for none")
	qtyStr := flag.String("qty", "10", "Base-lot quantity or comma-separated list (e.g. 10,20,50)")
	maxQuoteLots := flag.Int64("max-quote", 0, "Max quote lots including fees (0 = unlimited for this call)")
	clientOrderID := flag.Uint64("client-order-id", 0, "Client-assigned order id")
	takeOnly := flag.Bool("take-only", false, "Send as place_take_order instead of place_order")

	keyHi := flag.Uint64("key-hi", 0, "Order key high 64 bits, for cancel")
	keyLo := flag.Uint64("key-lo", 0, "Order key low 64 bits, for cancel")
	treeStr := flag.String("tree", "fixed", "Order tree for cancel: 'fixed' or 'pegged'")
	cancelLimit := flag.Uint("cancel-limit", 10, "Max orders to cancel with cancel-all")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to gateway at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	go readReports(conn)

	side := common.Bid
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Ask
	}

	switch strings.ToLower(*action) {
	case "place":
		kind := parseKind(*kindStr)
		postType := parsePostType(*postStr)
		cid := *clientOrderID
		if cid == 0 {
			cid = common.NewClientOrderID()
		}
		maxQuote := *maxQuoteLots
		if maxQuote == 0 {
			maxQuote = math.MaxInt64
		}
		for _, qty := range parseQuantities(*qtyStr) {
			err := sendNewOrder(conn, *market, *owner, side, kind, postType, *takeOnly,
				*priceLots, *priceOffsetLots, *pegLimit, int64(qty), maxQuote, cid)
			if err != nil {
				log.Printf("Failed to place order (qty %d): %v", qty, err)
			} else {
				fmt.Printf("-> Sent %s order: %s qty=%d price=%d\n", strings.ToUpper(*sideStr), *market, qty, *priceLots)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		tree := common.TreeFixed
		if strings.ToLower(*treeStr) == "pegged" {
			tree = common.TreeOraclePegged
		}
		if err := sendCancelOrder(conn, *market, *owner, *keyHi, *keyLo, tree); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent cancel request for key %d:%d\n", *keyHi, *keyLo)
		}

	case "cancel-all":
		if err := sendCancelAll(conn, *market, *owner, side, uint16(*cancelLimit)); err != nil {
			log.Printf("Failed to send cancel-all request: %v", err)
		} else {
			fmt.Println("-> Sent cancel-all request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func parseKind(s string) common.OrderParamsKind {
	switch strings.ToLower(s) {
	case "market":
		return common.ParamsMarket
	case "ioc":
		return common.ParamsImmediateOrCancel
	case "fok":
		return common.ParamsFillOrKill
	case "pegged":
		return common.ParamsOraclePegged
	default:
		return common.ParamsFixed
	}
}

func parsePostType(s string) common.PostOrderType {
	switch strings.ToLower(s) {
	case "post-only":
		return common.PostOnly
	case "post-only-slide":
		return common.PostOnlySlide
	default:
		return common.PostLimit
	}
}

func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: invalid quantity %q, skipping", p)
		}
	}
	return result
}

func sendNewOrder(conn net.Conn, market, owner string, side common.Side, kind common.OrderParamsKind,
	postType common.PostOrderType, takeOnly bool, priceLots, priceOffsetLots, pegLimit, maxBaseLots,
	maxQuoteLots int64, clientOrderID uint64) error {

	marketLen := len(market)
	ownerLen := len(owner)
	totalLen := wire.BaseMessageHeaderLen + wire.NewOrderMessageHeaderLen + marketLen + ownerLen
	buf := make([]byte, totalLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(wire.NewOrder))
	body := buf[2:]
	body[0] = byte(side)
	body[1] = byte(kind)
	body[2] = byte(postType)
	body[3] = byte(common.DecrementTake)
	if takeOnly {
		body[4] = 1
	}
	binary.BigEndian.PutUint64(body[5:13], uint64(priceLots))
	binary.BigEndian.PutUint64(body[13:21], uint64(priceOffsetLots))
	binary.BigEndian.PutUint64(body[21:29], uint64(pegLimit))
	binary.BigEndian.PutUint64(body[29:37], uint64(maxBaseLots))
	binary.BigEndian.PutUint64(body[37:45], uint64(maxQuoteLots))
	binary.BigEndian.PutUint64(body[45:53], clientOrderID)
	binary.BigEndian.PutUint16(body[53:55], 0)
	body[55] = uint8(marketLen)
	body[56] = uint8(ownerLen)
	rest := body[wire.NewOrderMessageHeaderLen:]
	copy(rest, market)
	copy(rest[marketLen:], owner)

	_, err := conn.Write(buf)
	return err
}

func sendCancelOrder(conn net.Conn, market, owner string, keyHi, keyLo uint64, tree common.BookSideOrderTree) error {
	marketLen := len(market)
	ownerLen := len(owner)
	totalLen := wire.BaseMessageHeaderLen + wire.CancelOrderMessageHeaderLen + marketLen + ownerLen
	buf := make([]byte, totalLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(wire.CancelOrder))
	body := buf[2:]
	binary.BigEndian.PutUint64(body[0:8], keyHi)
	binary.BigEndian.PutUint64(body[8:16], keyLo)
	body[16] = byte(tree)
	body[17] = uint8(marketLen)
	body[18] = uint8(ownerLen)
	rest := body[wire.CancelOrderMessageHeaderLen:]
	copy(rest, market)
	copy(rest[marketLen:], owner)

	_, err := conn.Write(buf)
	return err
}

func sendCancelAll(conn net.Conn, market, owner string, side common.Side, limit uint16) error {
	marketLen := len(market)
	ownerLen := len(owner)
	totalLen := wire.BaseMessageHeaderLen + wire.CancelAllMessageHeaderLen + marketLen + ownerLen
	buf := make([]byte, totalLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(wire.CancelAll))
	body := buf[2:]
	body[0] = 1
	body[1] = byte(side)
	binary.BigEndian.PutUint16(body[2:4], limit)
	body[4] = uint8(marketLen)
	body[5] = uint8(ownerLen)
	rest := body[wire.CancelAllMessageHeaderLen:]
	copy(rest, market)
	copy(rest[marketLen:], owner)

	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and prints Report frames from the gateway.
func readReports(conn net.Conn) {
	const fixedHeaderLen = 1 + 8 + 8 + 1 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 4

	for {
		headerBuf := make([]byte, fixedHeaderLen)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := wire.ReportMessageType(headerBuf[0])
		orderIDHi := binary.BigEndian.Uint64(headerBuf[1:9])
		orderIDLo := binary.BigEndian.Uint64(headerBuf[9:17])
		hasOrderID := headerBuf[17] != 0
		baseTaken := int64(binary.BigEndian.Uint64(headerBuf[18:26]))
		quoteTaken := int64(binary.BigEndian.Uint64(headerBuf[26:34]))
		takerFee := int64(binary.BigEndian.Uint64(headerBuf[34:42]))
		postedBase := int64(binary.BigEndian.Uint64(headerBuf[58:66]))
		errStrLen := binary.BigEndian.Uint32(headerBuf[74:78])

		errBuf := make([]byte, errStrLen)
		if errStrLen > 0 {
			if _, err := io.ReadFull(conn, errBuf); err != nil {
				log.Printf("Error reading report body: %v", err)
				return
			}
		}

		switch msgType {
		case wire.ErrorReport:
			fmt.Printf("\n[GATEWAY ERROR] %s\n", string(errBuf))
		case wire.OutReport:
			fmt.Printf("\n[OUT] base=%d\n", baseTaken)
		default:
			idStr := ""
			if hasOrderID {
				idStr = fmt.Sprintf(" orderID=%d:%d", orderIDHi, orderIDLo)
			}
			fmt.Printf("\n[EXECUTION] baseTaken=%d quoteTaken=%d takerFee=%d postedBase=%d%s\n",
				baseTaken, quoteTaken, takerFee, postedBase, idStr)
		}
	}
}
