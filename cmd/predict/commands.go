package main

import (
	"context"
	"fmt"
	"strings"

	"predictpool/internal/engine"
	"predictpool/internal/market"
	"predictpool/pkg/types"
)

func runDeposit(_ context.Context, a *app, args []string) error {
	fs := newFlags("deposit")
	account := fs.String("account", "", "participant hex address")
	asset := fs.String("asset", "USDC", "collateral asset")
	amount := fs.Uint64("amount", 0, "amount in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "account", "amount"); err != nil {
		return err
	}
	addr, err := parseAddress("account", *account)
	if err != nil {
		return err
	}
	acct := market.AccountOf(addr)
	if err := a.ledger.Deposit(*asset, acct, *amount); err != nil {
		return err
	}
	a.logger.Info("deposit", "account", acct, "asset", *asset, "amount", *amount)
	fmt.Fprintf(a.out, "%s balance: %s %s\n", acct, a.amount(a.ledger.Balance(*asset, acct)), *asset)
	return nil
}

func runCreateMarket(ctx context.Context, a *app, args []string) error {
	fs := newFlags("create-market")
	id := fs.String("id", "", "market id (default: random UUID)")
	creator := fs.String("creator", "", "creator hex address")
	resolver := fs.String("resolver", "", "resolver hex address (default: creator)")
	asset := fs.String("asset", "USDC", "collateral asset")
	feed := fs.String("feed", "", "oracle feed id")
	price := fs.Int64("price", 0, "initial (target) price")
	settle := fs.Int64("settle", 0, "settle time in unix seconds")
	settleIn := fs.Duration("settle-in", 0, "settle time relative to --now")
	category := fs.String("category", string(types.CategoryCrypto), "market category")
	description := fs.String("description", "", "free-text description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "creator", "price"); err != nil {
		return err
	}
	creatorAddr, err := parseAddress("creator", *creator)
	if err != nil {
		return err
	}
	req := engine.CreateMarketRequest{
		ID:              *id,
		Creator:         creatorAddr,
		CollateralAsset: *asset,
		OracleFeed:      *feed,
		InitialPrice:    *price,
		SettleTime:      *settle,
		Category:        types.Category(*category),
		Description:     *description,
	}
	if *settleIn > 0 {
		req.SettleTime = a.now + int64(settleIn.Seconds())
	}
	if *resolver != "" {
		r, err := parseAddress("resolver", *resolver)
		if err != nil {
			return err
		}
		req.Resolver = &r
	}

	m, err := a.eng.CreateMarket(ctx, req, a.now)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "market %s created: target %d, settles at %d, status %s\n",
		m.ID, m.TargetPrice, m.SettleTime, m.Status)
	return nil
}

func runBet(ctx context.Context, a *app, args []string) error {
	fs := newFlags("bet")
	id := fs.String("market", "", "market id")
	bettor := fs.String("bettor", "", "bettor hex address")
	sideFlag := fs.String("side", "", "yes or no")
	amount := fs.Uint64("amount", 0, "stake in base units, fee included")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market", "bettor", "side", "amount"); err != nil {
		return err
	}
	addr, err := parseAddress("bettor", *bettor)
	if err != nil {
		return err
	}
	side, err := types.ParseOutcome(*sideFlag)
	if err != nil {
		return err
	}

	r, err := a.eng.PlaceBet(ctx, *id, addr, side, *amount, a.now)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "bet %s on %s: stake %s, fee %s, YES now %s\n",
		a.amount(r.Amount), r.Side, a.amount(r.Net), a.amount(r.Fee), bps(r.YesBps))
	return nil
}

func runResolve(ctx context.Context, a *app, args []string) error {
	fs := newFlags("resolve")
	id := fs.String("market", "", "market id")
	caller := fs.String("caller", "", "resolver hex address")
	price := fs.Int64("price", 0, "final price (external resolution)")
	oraclePrice := fs.Int64("oracle-price", 0, "oracle reading price")
	oracleExpo := fs.Int32("oracle-expo", 0, "oracle reading exponent")
	oracleConf := fs.Uint64("oracle-conf", 0, "oracle reading confidence")
	oraclePublish := fs.Int64("oracle-publish-time", 0, "oracle reading publish time (default: --now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market", "caller"); err != nil {
		return err
	}
	addr, err := parseAddress("caller", *caller)
	if err != nil {
		return err
	}

	var outcome types.Outcome
	switch {
	case fs.Changed("price") && fs.Changed("oracle-price"):
		return fmt.Errorf("--price and --oracle-price are mutually exclusive")
	case fs.Changed("price"):
		outcome, err = a.eng.ResolveWithPrice(ctx, *id, addr, *price, a.now)
	case fs.Changed("oracle-price"):
		st, err := a.eng.Market(*id)
		if err != nil {
			return err
		}
		publish := *oraclePublish
		if !fs.Changed("oracle-publish-time") {
			publish = a.now
		}
		a.oracle.Set(st.Market.OracleFeed, types.PriceReading{
			Price:       *oraclePrice,
			Expo:        *oracleExpo,
			Confidence:  *oracleConf,
			PublishTime: publish,
		})
		outcome, err = a.eng.ResolveFromOracle(ctx, *id, addr, a.now)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("one of --price or --oracle-price is required")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "market %s resolved: %s wins\n", *id, outcome)
	return nil
}

func runClaim(ctx context.Context, a *app, args []string) error {
	fs := newFlags("claim")
	id := fs.String("market", "", "market id")
	claimant := fs.String("claimant", "", "claimant hex address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market", "claimant"); err != nil {
		return err
	}
	addr, err := parseAddress("claimant", *claimant)
	if err != nil {
		return err
	}
	p, err := a.eng.Claim(ctx, *id, addr, a.now)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "claimed %s (stake %s + profit %s)\n",
		a.amount(p.Total), a.amount(p.WinningStake), a.amount(p.Profit))
	return nil
}

func runInitMaker(ctx context.Context, a *app, args []string) error {
	fs := newFlags("init-maker")
	id := fs.String("market", "", "market id")
	authority := fs.String("authority", "", "maker authority hex address")
	spread := fs.Uint64("spread-bps", 500, "rebalance threshold in bps from an even split")
	maxExposure := fs.Uint64("max-exposure", 0, "maker exposure cap in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market", "authority", "max-exposure"); err != nil {
		return err
	}
	addr, err := parseAddress("authority", *authority)
	if err != nil {
		return err
	}
	mm, err := a.eng.InitMarketMaker(ctx, *id, addr, *spread, *maxExposure, a.now)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "maker for %s: authority %s, cap %s\n", mm.MarketID, mm.Authority.Hex(), a.amount(mm.MaxExposure))
	return nil
}

func runProvideLiquidity(ctx context.Context, a *app, args []string) error {
	fs := newFlags("provide-liquidity")
	id := fs.String("market", "", "market id")
	provider := fs.String("provider", "", "maker authority hex address")
	amount := fs.Uint64("amount", 0, "amount per side in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market", "provider", "amount"); err != nil {
		return err
	}
	addr, err := parseAddress("provider", *provider)
	if err != nil {
		return err
	}
	if err := a.eng.ProvideLiquidity(ctx, *id, addr, *amount, a.now); err != nil {
		return err
	}
	st, err := a.eng.Market(*id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added %s per side; maker exposure %s\n", a.amount(*amount), a.amount(st.Maker.CurrentExposure))
	return nil
}

func runConsolidate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("consolidate")
	id := fs.String("market", "", "market id")
	caller := fs.String("caller", "", "fee collector authority hex address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market", "caller"); err != nil {
		return err
	}
	addr, err := parseAddress("caller", *caller)
	if err != nil {
		return err
	}
	c, err := a.eng.ConsolidateFees(ctx, *id, addr, a.now)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "swept %s: treasury %s, liquidity %s, creator %s\n",
		a.amount(c.Amount), a.amount(c.Split.Treasury), a.amount(c.Split.Liquidity), a.amount(c.Split.Creator))
	return nil
}

func runPause(ctx context.Context, a *app, args []string) error {
	fs := newFlags("pause")
	id := fs.String("market", "", "market id")
	caller := fs.String("caller", "", "creator or resolver hex address")
	resume := fs.Bool("resume", false, "clear the pause instead of setting it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market", "caller"); err != nil {
		return err
	}
	addr, err := parseAddress("caller", *caller)
	if err != nil {
		return err
	}
	if err := a.eng.SetPaused(ctx, *id, addr, !*resume, a.now); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "market %s paused=%v\n", *id, !*resume)
	return nil
}

func runTransition(ctx context.Context, a *app, args []string) error {
	fs := newFlags("transition")
	id := fs.String("market", "", "market id")
	caller := fs.String("caller", "", "resolver hex address")
	to := fs.String("to", "", "disputed or cancelled")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market", "caller", "to"); err != nil {
		return err
	}
	addr, err := parseAddress("caller", *caller)
	if err != nil {
		return err
	}
	status, err := types.ParseMarketStatus(*to)
	if err != nil {
		return err
	}
	if err := a.eng.Transition(ctx, *id, addr, status, a.now); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "market %s is now %s\n", *id, status)
	return nil
}

func runQuote(_ context.Context, a *app, args []string) error {
	fs := newFlags("quote")
	id := fs.String("market", "", "market id")
	sideFlag := fs.String("side", "yes", "yes or no")
	amount := fs.Uint64("amount", 0, "prospective stake in base units")
	external := fs.Uint64("external-yes-bps", 0, "external YES probability in bps for arbitrage detection")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "market"); err != nil {
		return err
	}
	side, err := types.ParseOutcome(*sideFlag)
	if err != nil {
		return err
	}
	req := engine.QuoteRequest{Side: side, Amount: *amount}
	if fs.Changed("external-yes-bps") {
		req.ExternalYesBps = external
	}

	q, err := a.eng.Quote(*id, req)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(q)
	}
	fmt.Fprintf(a.out, "YES %s  NO %s  (odds %s / %s)\n", bps(q.YesBps), bps(q.NoBps), q.OddsYes.StringFixed(4), q.OddsNo.StringFixed(4))
	if *amount > 0 {
		fmt.Fprintf(a.out, "%s on %s: impact %s, pays %s if it wins\n", a.amount(*amount), side, bps(q.PriceImpactBps), a.amount(q.ExpectedPayout))
	}
	if q.Arbitrage != nil {
		fmt.Fprintf(a.out, "arbitrage: %s underpriced by %s\n", q.Arbitrage.Side, bps(q.Arbitrage.ProfitBps))
	}
	if q.NeedsRebalance {
		fmt.Fprintf(a.out, "maker rebalance: +%s YES, +%s NO\n", a.amount(q.RebalanceYes), a.amount(q.RebalanceNo))
	}
	return nil
}

func runShow(_ context.Context, a *app, args []string) error {
	fs := newFlags("show")
	id := fs.String("market", "", "market id (default: list all markets)")
	account := fs.String("account", "", "print this account's balance instead")
	asset := fs.String("asset", "USDC", "asset for --account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *account != "" {
		acct := types.Account(*account)
		if addr, err := parseAddress("account", *account); err == nil {
			acct = market.AccountOf(addr)
		} else if !strings.HasPrefix(*account, "market:") {
			return err
		}
		fmt.Fprintf(a.out, "%s: %s %s\n", acct, a.amount(a.ledger.Balance(*asset, acct)), *asset)
		return nil
	}
	if *id != "" {
		st, err := a.eng.Market(*id)
		if err != nil {
			return err
		}
		return a.printJSON(st)
	}

	for _, m := range a.eng.Markets() {
		yes, _ := m.GetSpotPrices()
		fmt.Fprintf(a.out, "%s  %-17s  pot %s  YES %s  settles %d\n",
			m.ID, m.Status, a.amount(m.TotalPot()), bps(yes), m.SettleTime)
	}
	c := a.eng.Collector()
	fmt.Fprintf(a.out, "fees consolidated: %s\n", a.amount(c.TotalFeesCollected))
	return nil
}
