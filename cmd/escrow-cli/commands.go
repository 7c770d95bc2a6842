package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"cyberswap/core/types"
	"cyberswap/native/escrow"
	"cyberswap/rpc"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseAmount accepts a non-negative decimal integer.
func parseAmount(raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

// parseCoins reads "100X,5Y" into native coins.
func parseCoins(raw string) ([]escrow.Coin, error) {
	var out []escrow.Coin
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		split := strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' })
		if split <= 0 {
			return nil, fmt.Errorf("coin %q must be an amount followed by a denom", part)
		}
		amount, err := parseAmount(part[:split])
		if err != nil {
			return nil, err
		}
		out = append(out, escrow.Coin{Denom: part[split:], Amount: amount})
	}
	return out, nil
}

// parseBalance reads native coins and AMOUNT@CONTRACT token entries.
func parseBalance(raw string) (escrow.GenericBalance, error) {
	var bal escrow.GenericBalance
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if amountRaw, contractRaw, ok := strings.Cut(part, "@"); ok {
			amount, err := parseAmount(amountRaw)
			if err != nil {
				return bal, err
			}
			contract, err := types.ParseAddress(contractRaw)
			if err != nil {
				return bal, fmt.Errorf("token contract: %w", err)
			}
			bal.Fungible = append(bal.Fungible, escrow.TokenAmount{Contract: contract, Amount: amount})
			continue
		}
		coins, err := parseCoins(part)
		if err != nil {
			return bal, err
		}
		bal.Native = append(bal.Native, coins...)
	}
	if bal.IsEmpty() {
		return bal, fmt.Errorf("balance must not be empty")
	}
	return bal, nil
}

func parseSender(raw string) (types.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return types.Address{}, fmt.Errorf("--sender is required")
	}
	return types.ParseAddress(raw)
}

func execute(sender string, funds string, msg escrow.ExecuteMsg, stdout, stderr io.Writer) int {
	addr, err := parseSender(sender)
	if err != nil {
		return printError(stderr, err.Error())
	}
	req := rpc.ExecuteRequest{Sender: addr, Msg: msg}
	if funds != "" {
		if req.Funds, err = parseCoins(funds); err != nil {
			return printError(stderr, err.Error())
		}
	}
	return post("/v1/execute", req, stdout, stderr)
}

func runListingCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, listingUsage())
		return 1
	}
	fs := newFlagSet("listing "+args[0], stderr)
	sender := fs.String("sender", "", "acting address")
	funds := fs.String("funds", "", "attached native coins, e.g. 100X,5Y")
	id := fs.Uint64("id", 0, "listing id")
	ask := fs.String("ask", "", "asked balance, e.g. 50Y,10@<contract>")
	buyer := fs.String("buyer", "", "reserve the listing for this buyer")
	seconds := fs.Uint64("seconds", 0, "time the listing stays open once finalized")
	bucket := fs.Uint64("bucket", 0, "pay from this bucket instead of attached funds")
	owner := fs.String("owner", "", "owner to list")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	ref := &escrow.ListingRef{ListingID: *id}

	switch args[0] {
	case "create":
		bal, err := parseBalance(*ask)
		if err != nil {
			return printError(stderr, "--ask: "+err.Error())
		}
		msg := &escrow.CreateListingMsg{Ask: bal}
		if *buyer != "" {
			if msg.WhitelistedBuyer, err = types.ParseAddress(*buyer); err != nil {
				return printError(stderr, "--buyer: "+err.Error())
			}
		}
		return execute(*sender, *funds, escrow.ExecuteMsg{CreateListing: msg}, stdout, stderr)
	case "add-funds":
		return execute(*sender, *funds, escrow.ExecuteMsg{AddFundsToSale: ref}, stdout, stderr)
	case "change-ask":
		bal, err := parseBalance(*ask)
		if err != nil {
			return printError(stderr, "--ask: "+err.Error())
		}
		return execute(*sender, "", escrow.ExecuteMsg{ChangeAsk: &escrow.ChangeAskMsg{ListingID: *id, Ask: bal}}, stdout, stderr)
	case "finalize":
		if *seconds == 0 {
			return printError(stderr, "--seconds is required")
		}
		return execute(*sender, *funds, escrow.ExecuteMsg{Finalize: &escrow.FinalizeMsg{ListingID: *id, Seconds: *seconds}}, stdout, stderr)
	case "remove":
		return execute(*sender, "", escrow.ExecuteMsg{RemoveListing: ref}, stdout, stderr)
	case "refund":
		return execute(*sender, "", escrow.ExecuteMsg{RefundExpired: ref}, stdout, stderr)
	case "buy":
		return execute(*sender, *funds, escrow.ExecuteMsg{BuyListing: &escrow.BuyListingMsg{ListingID: *id, BucketID: *bucket}}, stdout, stderr)
	case "withdraw":
		return execute(*sender, "", escrow.ExecuteMsg{WithdrawPurchased: ref}, stdout, stderr)
	case "get":
		return get("/v1/listings/"+strconv.FormatUint(*id, 10), stdout, stderr)
	case "list":
		path := "/v1/listings"
		if *owner != "" {
			path += "?owner=" + url.QueryEscape(*owner)
		}
		return get(path, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown listing subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, listingUsage())
		return 1
	}
}

func listingUsage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli listing <command> [flags]

Commands:
  create      Create a listing from attached funds (--sender --funds --ask [--buyer])
  add-funds   Add attached funds to a listing (--sender --id --funds)
  change-ask  Replace the ask (--sender --id --ask)
  finalize    Open a listing for purchase (--sender --id --seconds [--funds fee])
  remove      Remove an unfinalized listing (--sender --id)
  refund      Return an expired listing to its creator (--sender --id)
  buy         Buy a listing (--sender --id --funds | --bucket)
  withdraw    Withdraw a purchased listing (--sender --id)
  get         Show a listing (--id)
  list        List listings ([--owner])`)
}

func runBucketCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, bucketUsage())
		return 1
	}
	fs := newFlagSet("bucket "+args[0], stderr)
	sender := fs.String("sender", "", "acting address")
	funds := fs.String("funds", "", "attached native coins")
	id := fs.Uint64("id", 0, "bucket id (0 picks a fresh id on create)")
	owner := fs.String("owner", "", "owner to list")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	ref := &escrow.BucketRef{BucketID: *id}
	switch args[0] {
	case "create":
		return execute(*sender, *funds, escrow.ExecuteMsg{CreateBucket: ref}, stdout, stderr)
	case "add":
		return execute(*sender, *funds, escrow.ExecuteMsg{AddToBucket: ref}, stdout, stderr)
	case "remove":
		return execute(*sender, "", escrow.ExecuteMsg{RemoveBucket: ref}, stdout, stderr)
	case "list":
		if _, err := types.ParseAddress(*owner); err != nil {
			return printError(stderr, "--owner: "+err.Error())
		}
		return get("/v1/buckets/"+url.PathEscape(*owner), stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown bucket subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, bucketUsage())
		return 1
	}
}

func bucketUsage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli bucket <command> [flags]

Commands:
  create  Create a bucket from attached funds (--sender --funds [--id])
  add     Add attached funds to a bucket (--sender --id --funds)
  remove  Remove a bucket and return its funds (--sender --id)
  list    List an owner's buckets (--owner)`)
}

func parseHook(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("--msg is required")
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("--msg must be valid JSON")
	}
	return json.RawMessage(raw), nil
}

func runSendToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("send-token", stderr)
	sender := fs.String("sender", "", "token holder")
	contract := fs.String("contract", "", "token contract address")
	amount := fs.String("amount", "", "amount to send")
	hook := fs.String("msg", "", `hook message, e.g. {"create_bucket":{}}`)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	from, err := parseSender(*sender)
	if err != nil {
		return printError(stderr, err.Error())
	}
	to, err := types.ParseAddress(*contract)
	if err != nil {
		return printError(stderr, "--contract: "+err.Error())
	}
	value, err := parseAmount(*amount)
	if err != nil {
		return printError(stderr, "--amount: "+err.Error())
	}
	msg, err := parseHook(*hook)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return post("/v1/send-token", rpc.SendTokenRequest{Sender: from, Contract: to, Amount: value, Msg: msg}, stdout, stderr)
}

func runSendNFT(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("send-nft", stderr)
	sender := fs.String("sender", "", "NFT owner")
	collection := fs.String("collection", "", "collection address")
	tokenID := fs.String("token-id", "", "token id")
	hook := fs.String("msg", "", `hook message, e.g. {"add_to_listing":{"listing_id":1}}`)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	from, err := parseSender(*sender)
	if err != nil {
		return printError(stderr, err.Error())
	}
	coll, err := types.ParseAddress(*collection)
	if err != nil {
		return printError(stderr, "--collection: "+err.Error())
	}
	if strings.TrimSpace(*tokenID) == "" {
		return printError(stderr, "--token-id is required")
	}
	msg, err := parseHook(*hook)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return post("/v1/send-nft", rpc.SendNFTRequest{Sender: from, Collection: coll, TokenID: *tokenID, Msg: msg}, stdout, stderr)
}

func runApproval(path string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(strings.TrimPrefix(path, "/v1/"), stderr)
	owner := fs.String("owner", "", "NFT owner")
	collection := fs.String("collection", "", "collection address")
	tokenID := fs.String("token-id", "", "token id")
	spender := fs.String("spender", "", "approved spender")
	atHeight := fs.Uint64("expires-height", 0, "approval lapses at this height")
	atTime := fs.Uint64("expires-time", 0, "approval lapses at this unix time")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := rpc.ApprovalRequest{TokenID: *tokenID, Expires: escrow.Never()}
	var err error
	if req.Owner, err = types.ParseAddress(*owner); err != nil {
		return printError(stderr, "--owner: "+err.Error())
	}
	if req.Collection, err = types.ParseAddress(*collection); err != nil {
		return printError(stderr, "--collection: "+err.Error())
	}
	if req.Spender, err = types.ParseAddress(*spender); err != nil {
		return printError(stderr, "--spender: "+err.Error())
	}
	switch {
	case *atHeight > 0 && *atTime > 0:
		return printError(stderr, "--expires-height and --expires-time are exclusive")
	case *atHeight > 0:
		req.Expires = escrow.AtHeight(*atHeight)
	case *atTime > 0:
		req.Expires = escrow.AtTime(*atTime)
	}
	return post(path, req, stdout, stderr)
}

func runMarket(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("market", stderr)
	page := fs.Uint64("page", 1, "1-based page number")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *page == 0 {
		return printError(stderr, "--page starts at 1")
	}
	return get("/v1/market?page="+strconv.FormatUint(*page, 10), stdout, stderr)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	address := fs.String("address", "", "account address")
	denom := fs.String("denom", "", "native denomination")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := types.ParseAddress(*address); err != nil {
		return printError(stderr, "--address: "+err.Error())
	}
	if strings.TrimSpace(*denom) == "" {
		return printError(stderr, "--denom is required")
	}
	return get("/v1/balances/"+url.PathEscape(*address)+"/"+url.PathEscape(*denom), stdout, stderr)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	kind := fs.String("type", "", "event type")
	listing := fs.String("listing", "", "listing id")
	bucket := fs.String("bucket", "", "bucket id")
	after := fs.String("after", "", "return events after this sequence number")
	limit := fs.String("limit", "", "maximum events to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	q := url.Values{}
	for key, value := range map[string]string{"type": *kind, "listing": *listing, "bucket": *bucket, "after": *after, "limit": *limit} {
		if value != "" {
			q.Set(key, value)
		}
	}
	path := "/v1/events"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return get(path, stdout, stderr)
}
