package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-dex/config"
	"github.com/defistate/defistate-dex/engine"
	"github.com/defistate/defistate-dex/examples/graph"
	"github.com/defistate/defistate-dex/protocols/exchange"
	"github.com/defistate/defistate-dex/protocols/exchange/calculator"
	exchangeindexer "github.com/defistate/defistate-dex/protocols/exchange/indexer"
	"github.com/defistate/defistate-dex/protocols/tokenregistry"
	tokenindexer "github.com/defistate/defistate-dex/protocols/tokenregistry/indexer"
	"github.com/defistate/defistate-dex/streams/jsonrpc/client"
	"github.com/defistate/defistate-dex/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultClientStateBufferSize = 100

	// nativeDecimals is the display precision of the native asset.
	nativeDecimals = 18
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// SafeState is a thread-safe container for the latest engine state.
type SafeState struct {
	mu    sync.RWMutex
	state *engine.State
}

func (s *SafeState) Update(newState *engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// view is the exchange data of one state, indexed for lookups.
type view struct {
	pools  exchangeindexer.IndexedExchange
	tokens tokenindexer.IndexedTokenSystem
}

func newView(state *engine.State) (*view, error) {
	poolProto, ok := state.Protocols[exchange.ProtocolID]
	if !ok {
		return nil, fmt.Errorf("protocol %q missing", exchange.ProtocolID)
	}
	if poolProto.Error != "" {
		return nil, fmt.Errorf("protocol %q: %s", exchange.ProtocolID, poolProto.Error)
	}
	pools, ok := poolProto.Data.([]exchange.PoolView)
	if !ok {
		return nil, fmt.Errorf("bad pool data type %T", poolProto.Data)
	}

	tokenProto, ok := state.Protocols[tokenregistry.ProtocolID]
	if !ok {
		return nil, fmt.Errorf("protocol %q missing", tokenregistry.ProtocolID)
	}
	if tokenProto.Error != "" {
		return nil, fmt.Errorf("protocol %q: %s", tokenregistry.ProtocolID, tokenProto.Error)
	}
	tokens, ok := tokenProto.Data.([]tokenregistry.Token)
	if !ok {
		return nil, fmt.Errorf("bad token data type %T", tokenProto.Data)
	}

	return &view{
		pools:  exchangeindexer.New().Index(pools),
		tokens: tokenindexer.New().Index(tokens),
	}, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("client.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	rootLogger := config.NewLogger(logFile, cfg.LogLevel)

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check client.log for details." + Reset)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. INITIALIZE OPS & CLIENT ---
	ops, err := stateops.NewStateOps(rootLogger, prometheus.DefaultRegisterer)
	if err != nil {
		rootLogger.Error("Failed to initialize State Ops", "error", err)
		closeApp()
	}

	c, err := client.NewClient(
		ctx,
		client.Config{
			URL:              cfg.StateStreamURL,
			ChainID:          cfg.ChainID,
			Registry:         prometheus.DefaultRegisterer,
			Logger:           rootLogger.With("component", "jsonrpc-client"),
			BufferSize:       DefaultClientStateBufferSize,
			StatePatcher:     ops.Patch,
			StateDecoder:     ops.DecodeStateJSON,
			StateDiffDecoder: ops.DecodeStateDiffJSON,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "chain_id", cfg.ChainID, "error", err)
		closeApp()
	}

	// --- 3. START CONSOLE & STATE LOOP ---
	safeState := &SafeState{}

	fmt.Println(Green + "Starting DEX Console..." + Reset)
	fmt.Println("Logs are being written to 'client.log'")
	go runConsole(ctx, safeState)

	for {
		select {
		case n := <-c.State():
			safeState.Update(n)

		case err := <-c.Err():
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

// runConsole handles user input and display.
func runConsole(ctx context.Context, safeState *SafeState) {
	reader := bufio.NewReader(os.Stdin)
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}
		handleCommand(strings.TrimSpace(input), safeState, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "DEX CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Current Block Info\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Protocol Summary\n", Cyan, Reset)
	fmt.Printf(" %s3.%s List Pools\n", Cyan, Reset)
	fmt.Printf(" %s4.%s Find Pool  %s(by Pool/Token Address, Symbol or ID)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Watch Pool %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Route      %s(Quote across pools)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(input string, safeState *SafeState, reader *bufio.Reader) {
	state := safeState.Get()

	// Allow help and quit even if state isn't ready
	if state == nil && input != "q" && input != "h" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first state update... (Check connection/logs)" + Reset)
		return
	}

	switch input {
	case "1":
		printBlockInfo(state)
	case "2":
		printProtocolSummary(state)
	case "3":
		withView(state, printPools)
	case "4":
		fmt.Print("\n" + Bold + "[Find Pool] Enter pool address, token address, symbol or id: " + Reset)
		query := readLine(reader)
		withView(state, func(v *view) { printPool(v, query) })
	case "5":
		watchPool(safeState, reader)
	case "6":
		withView(state, func(v *view) { findRoute(v, reader) })
	case "h":
		printHelp()
	case "q":
		exitConsole()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

func withView(state *engine.State, fn func(v *view)) {
	v, err := newView(state)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	fn(v)
}

func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("EXCHANGE STATE STREAM")
	fmt.Println("Every committed call on the node produces a new " + Cyan + "State" + Reset + ":")
	fmt.Println("   - " + Yellow + "Block" + Reset + ": height, caller, callee and event count of the call.")
	fmt.Println("   - " + Yellow + "Protocols" + Reset + ": the token registry and the exchange pools at that height.")
	fmt.Println("")
	fmt.Println(Bold + "POOLS" + Reset)
	fmt.Println("   Each pool pairs the native asset with one token and prices trades")
	fmt.Println("   with a constant product of its two reserves. Token to token trades")
	fmt.Println("   go through the native asset, so they take two pools.")
	fmt.Println("")
	fmt.Println(Bold + "AMOUNTS" + Reset)
	fmt.Println("   Amounts are entered in whole units (e.g. 1.5) and scaled by the")
	fmt.Printf("   asset's decimals. The native asset uses %d decimals.\n", nativeDecimals)
}

func printBlockInfo(state *engine.State) {
	ts := time.Unix(0, int64(state.Timestamp)).Format("15:04:05")

	fmt.Printf("\n%sSTATUS  ::%s Block %s#%d%s | Chain %s%d%s | Time %s%s%s\n",
		Green, Reset,
		Bold, state.Block.Number, Reset,
		Bold, state.ChainID, Reset,
		Bold, ts, Reset,
	)
	fmt.Printf("%sCALL    ::%s %s -> %s (%d events)\n", Green, Reset, state.Block.From.Hex(), state.Block.To.Hex(), state.Block.LogCount)
}

func printProtocolSummary(state *engine.State) {
	header("PROTOCOL SUMMARY")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PROTOCOL ID\tSCHEMA\tSYNCED\tSTATUS\t")
	fmt.Fprintln(w, "-----------\t------\t------\t------\t")

	ids := make([]string, 0, len(state.Protocols))
	for id := range state.Protocols {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	errCount := 0
	for _, id := range ids {
		p := state.Protocols[engine.ProtocolID(id)]
		status := Green + "OK" + Reset
		if p.Error != "" {
			status = Red + "ERROR: " + p.Error + Reset
			errCount++
		}
		synced := "-"
		if p.SyncedBlockNumber != nil {
			synced = strconv.FormatUint(*p.SyncedBlockNumber, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", id, p.Schema, synced, status)
	}
	w.Flush()

	fmt.Printf("\n%sProtocols with Errors: %d%s\n", Bold, errCount, Reset)
}

func printPools(v *view) {
	header("POOLS")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tNATIVE RESERVE\tTOKEN RESERVE\tSHARES\tRATE\tPOOL\t")
	fmt.Fprintln(w, "--\t------\t--------------\t-------------\t------\t----\t----\t")
	for _, p := range v.pools.All() {
		symbol := "?"
		decimals := uint8(0)
		if t, ok := v.tokens.GetByID(p.ID); ok {
			symbol, decimals = t.Symbol, t.Decimals
		}
		rate := "-"
		if r, err := poolRate(p); err == nil {
			rate = formatAmount(r.ToBig(), decimals)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			p.ID, symbol,
			formatAmount(p.NativeReserve, nativeDecimals),
			formatAmount(p.TokenReserve, decimals),
			formatAmount(p.TotalSupply, nativeDecimals),
			rate,
			p.Address.Hex(),
		)
	}
	w.Flush()
}

// findPool resolves query as a pool address, token address, symbol or id.
func findPool(v *view, query string) (exchange.PoolView, bool) {
	if common.IsHexAddress(query) {
		addr := common.HexToAddress(query)
		if p, ok := v.pools.GetByAddress(addr); ok {
			return p, true
		}
		return v.pools.GetByToken(addr)
	}
	if id, err := strconv.ParseUint(query, 10, 64); err == nil {
		return v.pools.GetByID(id)
	}
	for _, t := range v.tokens.All() {
		if strings.EqualFold(t.Symbol, query) {
			return v.pools.GetByID(t.ID)
		}
	}
	return exchange.PoolView{}, false
}

func printPool(v *view, query string) {
	p, ok := findPool(v, query)
	if !ok {
		fmt.Println(Red + "[NOT FOUND] No pool matches " + query + Reset)
		return
	}
	t, hasToken := v.tokens.GetByID(p.ID)

	header("POOL DETAILS")
	fmt.Printf(" %s%-16s%s %d\n", Gray, "ID:", Reset, p.ID)
	fmt.Printf(" %s%-16s%s %s\n", Gray, "Pool:", Reset, p.Address.Hex())
	fmt.Printf(" %s%-16s%s %s\n", Gray, "Token:", Reset, p.Token.Hex())
	if hasToken {
		fmt.Printf(" %s%-16s%s %s (%s, %d decimals)\n", Gray, "Metadata:", Reset, t.Symbol, t.Name, t.Decimals)
	}
	fmt.Printf(" %s%-16s%s %s\n", Gray, "Native reserve:", Reset, p.NativeReserve)
	fmt.Printf(" %s%-16s%s %s\n", Gray, "Token reserve:", Reset, p.TokenReserve)
	fmt.Printf(" %s%-16s%s %s\n", Gray, "Total shares:", Reset, p.TotalSupply)
	if p.NativeReserve != nil && p.TokenReserve != nil && p.NativeReserve.Sign() > 0 {
		rate := new(big.Rat).SetFrac(p.TokenReserve, p.NativeReserve)
		fmt.Printf(" %s%-16s%s %s tokens per native unit\n", Gray, "Spot rate:", Reset, rate.FloatString(6))
	}
	if r, err := poolRate(p); err == nil {
		fmt.Printf(" %s%-16s%s %s raw token units per native unit, trading 1%% of the reserve\n", Gray, "Sampled rate:", Reset, r.Dec())
	}
}

// poolRate is the token amount one whole native unit buys, sampled by
// trading 1% of the native reserve so the price impact shows.
func poolRate(p exchange.PoolView) (*uint256.Int, error) {
	if p.NativeReserve == nil || p.TokenReserve == nil {
		return nil, calculator.ErrNilAmount
	}
	nativeReserve, overflow := uint256.FromBig(p.NativeReserve)
	if overflow {
		return nil, fmt.Errorf("pool %d: native reserve overflows 256 bits", p.ID)
	}
	tokenReserve, overflow := uint256.FromBig(p.TokenReserve)
	if overflow {
		return nil, fmt.Errorf("pool %d: token reserve overflows 256 bits", p.ID)
	}
	return calculator.GetExchangeRate(nativeReserve, tokenReserve, nativeDecimals)
}

func watchPool(safeState *SafeState, reader *bufio.Reader) {
	fmt.Print("\n" + Bold + "[Watch Pool] Enter pool address, token address, symbol or id: " + Reset)
	query := readLine(reader)
	if query == "" {
		return
	}

	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(1 * time.Second)

	stopCh := make(chan struct{})
	go func() {
		reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastBlock := new(big.Int)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			state := safeState.Get()
			if state == nil || state.Block.Number == nil {
				continue
			}
			if state.Block.Number.Cmp(lastBlock) <= 0 {
				continue
			}
			lastBlock.Set(state.Block.Number)

			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"\n--- LIVE MONITOR (Block: %s) ---\n"+Reset, state.Block.Number.String())
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)
			withView(state, func(v *view) { printPool(v, query) })
		}
	}
}

// asset is one side of a route: the native asset or a registered token.
type asset struct {
	ID       uint64
	Symbol   string
	Decimals uint8
}

var errUnknownAsset = errors.New("unknown asset")

// resolveAsset accepts "native", a token symbol, id or address.
func resolveAsset(v *view, query string) (asset, error) {
	if strings.EqualFold(query, "native") || query == strconv.FormatUint(graph.NativeID, 10) {
		return asset{ID: graph.NativeID, Symbol: "NATIVE", Decimals: nativeDecimals}, nil
	}
	var (
		t  tokenregistry.Token
		ok bool
	)
	switch {
	case common.IsHexAddress(query):
		t, ok = v.tokens.GetByAddress(common.HexToAddress(query))
	default:
		if id, err := strconv.ParseUint(query, 10, 64); err == nil {
			t, ok = v.tokens.GetByID(id)
			break
		}
		for _, candidate := range v.tokens.All() {
			if strings.EqualFold(candidate.Symbol, query) {
				t, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		return asset{}, fmt.Errorf("%w: %q", errUnknownAsset, query)
	}
	return asset{ID: t.ID, Symbol: t.Symbol, Decimals: t.Decimals}, nil
}

func findRoute(v *view, reader *bufio.Reader) {
	header("ROUTE FINDER")

	fmt.Print(Bold + "1. Input asset (native, symbol, id or address): " + Reset)
	in, err := resolveAsset(v, readLine(reader))
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	fmt.Printf("%s   Selected Input: %s (%d decimals)%s\n", Green, in.Symbol, in.Decimals, Reset)

	fmt.Print(Bold + "2. Output asset: " + Reset)
	out, err := resolveAsset(v, readLine(reader))
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}
	fmt.Printf("%s   Selected Output: %s (%d decimals)%s\n", Green, out.Symbol, out.Decimals, Reset)

	fmt.Print(Bold + "3. Enter Input Amount (e.g. 1.5): " + Reset)
	amountInput := readLine(reader)
	amountIn, err := parseAmount(amountInput, in.Decimals)
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return
	}

	fmt.Printf("\nRouting %s %s (Raw: %s)...\n", amountInput, in.Symbol, amountIn.Dec())

	g, err := graph.NewGraph(v.pools.All())
	if err != nil {
		fmt.Printf(Red+"[ERROR] Failed to initialize graph: %v%s\n", err, Reset)
		return
	}
	hops, amountOut, err := g.FindBestSwapPath(in.ID, out.ID, amountIn, graph.DefaultRuns)
	if err != nil {
		fmt.Printf(Red+"[ERROR] Pathfinding failed: %v%s\n", err, Reset)
		return
	}
	if len(hops) == 0 {
		fmt.Println(Yellow + "No route found." + Reset)
		return
	}

	header("BEST ROUTE FOUND")
	fmt.Printf("%sEst. Output:%s %s %s (Raw: %s)\n\n", Bold, Reset, formatAmount(amountOut.ToBig(), out.Decimals), out.Symbol, amountOut.Dec())
	quotes, err := g.Quote(hops, amountIn)
	if err != nil {
		fmt.Printf(Red+"[ERROR] Quoting route failed: %v%s\n", err, Reset)
		return
	}
	for i, q := range quotes {
		fmt.Printf(" %d. %s -> %s via pool %d: %s in, %s out (pool after: %s / %s)\n",
			i+1, symbolOf(v, q.TokenInID), symbolOf(v, q.TokenOutID), q.PoolID,
			q.AmountIn.Dec(), q.AmountOut.Dec(), q.ReserveIn.Dec(), q.ReserveOut.Dec())
	}
}

func symbolOf(v *view, id uint64) string {
	if id == graph.NativeID {
		return "NATIVE"
	}
	if t, ok := v.tokens.GetByID(id); ok {
		return t.Symbol
	}
	return "#" + strconv.FormatUint(id, 10)
}

// parseAmount scales a decimal string such as "1.5" by 10^decimals. Digits
// beyond the asset's precision are rejected.
func parseAmount(s string, decimals uint8) (*uint256.Int, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, errors.New("invalid amount format")
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount has more than %d decimal places", decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return nil, errors.New("amount must be positive")
	}
	amount, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	return amount, nil
}

// formatAmount renders a raw amount in whole units.
func formatAmount(v *big.Int, decimals uint8) string {
	if v == nil {
		return "-"
	}
	if decimals == 0 {
		return v.String()
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(v, scale).FloatString(4)
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadClientConfig(*configPath)
}
