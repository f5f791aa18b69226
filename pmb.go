package pmb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pumpmybags/pmb/pkg/price"
	"github.com/pumpmybags/pmb/pkg/price/binance"
	"github.com/pumpmybags/pmb/pkg/price/coingecko"
	"github.com/pumpmybags/pmb/pkg/signal"
	sigbolt "github.com/pumpmybags/pmb/pkg/signal/bolt"
	"github.com/pumpmybags/pmb/pkg/signal/evaluate"
	"github.com/pumpmybags/pmb/pkg/signal/parser"
	"github.com/pumpmybags/pmb/pkg/telegram"
	"github.com/pumpmybags/pmb/pkg/user"
	userbolt "github.com/pumpmybags/pmb/pkg/user/bolt"
)

var version = "v260801a"

// priceCacheExpiry bounds how stale a quoted price may be.
const priceCacheExpiry = 5 * time.Minute

type messenger interface {
	HandleCommand(command string, handler func(telegram.Message))
	HandleGroups(handler func(telegram.Message))
	HandleButton(unique string, handler func(m telegram.Message, data string) (string, [][]telegram.Button))
	SendTo(chatID int64, text string, rows ...[]telegram.Button)
	Username() string
	Run(ctx context.Context) error
}

type Bot struct {
	run      func(context.Context) error
	ctx      context.Context
	cancel   context.CancelFunc
	tg       messenger
	log      func(v ...interface{})
	parser   signal.Parser
	store    signal.Store
	coins    signal.CoinStats
	users    user.Store
	oracle   price.Oracle
	updater  *evaluate.Updater
	schedule string
	cron     *cron.Cron
	lock     sync.Mutex
	now      func() time.Time
}

func NewBot(dbPath, usersDBPath, token string, adminChatID int64, parserName, schedule string) (*Bot, error) {
	tgbot, err := telegram.New(token, adminChatID)
	if err != nil {
		return nil, fmt.Errorf("pmb: couldn't create telegram bot: %w", err)
	}
	log := tgbot.Print
	p, err := parser.NewParser(parserName)
	if err != nil {
		return nil, fmt.Errorf("pmb: couldn't create parser %s: %w", parserName, err)
	}
	store, err := sigbolt.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("pmb: couldn't create signal db: %w", err)
	}
	users, err := userbolt.New(usersDBPath)
	if err != nil {
		return nil, fmt.Errorf("pmb: couldn't create user db: %w", err)
	}
	oracle := price.NewCache(price.Chain{
		coingecko.New(),
		binance.New("USDT"),
	}, priceCacheExpiry)
	return newBot(tgbot, log, p, store, store, users, oracle, schedule, adminChatID), nil
}

func newBot(tg messenger, log func(v ...interface{}), p signal.Parser, store signal.Store, coins signal.CoinStats, users user.Store, oracle price.Oracle, schedule string, adminChatID int64) *Bot {
	b := &Bot{
		ctx:      context.TODO(),
		run:      tg.Run,
		tg:       tg,
		log:      log,
		parser:   p,
		store:    store,
		coins:    coins,
		users:    users,
		oracle:   oracle,
		updater:  evaluate.NewUpdater(log, oracle),
		schedule: schedule,
		now:      time.Now,
	}
	tg.HandleGroups(b.handle)
	tg.HandleButton("vote", b.vote)
	tg.HandleCommand("start", b.start)
	tg.HandleCommand("help", b.help)
	tg.HandleCommand("subscribe", b.subscribe)
	tg.HandleCommand("unsubscribe", b.unsubscribe)
	tg.HandleCommand("signals", b.signals)
	tg.HandleCommand("price", b.price)
	tg.HandleCommand("coins", b.coinStats)
	tg.HandleCommand("performance", b.performance)
	tg.HandleCommand("stat", b.stat)
	tg.HandleCommand("signal", b.signalDetail)
	tg.HandleCommand("favorite", b.favorite)
	tg.HandleCommand("settings", b.settings)
	if adminChatID != 0 {
		tg.HandleCommand("shutdown", func(msg telegram.Message) {
			if msg.ChatID != adminChatID {
				return
			}
			b.log("shutting down")
			b.shutdown()
		})
	}
	return b
}

func (b *Bot) Run(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.log(fmt.Sprintf("🤖 pmb bot running\n- version: %s", version))
	defer b.log("🛑 pmb bot stopped")
	b.cron = cron.New()
	if _, err := b.cron.AddFunc(b.schedule, func() {
		b.Update(b.ctx)
	}); err != nil {
		return fmt.Errorf("pmb: couldn't schedule updates (%s): %w", b.schedule, err)
	}
	b.cron.Start()
	defer b.cron.Stop()
	return b.run(b.ctx)
}

// handle ingests a signal call posted in a group. Messages the parser can't
// resolve to a coin and a target are logged and dropped.
func (b *Bot) handle(msg telegram.Message) {
	text := strings.TrimSpace(strings.ReplaceAll(msg.Text, "@"+b.tg.Username(), ""))
	sig, err := b.parser.Parse(text)
	if err != nil {
		b.log(err)
		return
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if sig.ID == "" {
		n, err := b.store.NextID()
		if err != nil {
			b.log(fmt.Errorf("pmb: couldn't allocate signal id: %w", err))
			return
		}
		sig.ID = strconv.FormatUint(n, 10)
	}
	sig.Sender = sender(msg)
	sig.Group = msg.Group
	sig.Timestamp = b.now().UTC().Format(signal.TimeLayout)
	if err := b.store.Put(sig); err != nil {
		b.log(err)
		return
	}
	if err := b.coins.RecordCoin(sig.Coin, sig.ID, sig.Timestamp); err != nil {
		b.log(err)
	}
	b.log(fmt.Sprintf("📥 signal %s %s recorded from %s", sig.ID, sig.Coin, sig.Sender))
	b.broadcast(sig)
}

func (b *Bot) broadcast(sig *signal.Signal) {
	users, err := b.users.List()
	if err != nil {
		b.log(fmt.Errorf("pmb: couldn't list users: %w", err))
		return
	}
	text := formatSignal(sig)
	for _, u := range users {
		if !u.WantsSignal(sig.Coin, sig.Risk, sig.Timeframe) {
			continue
		}
		if u.IsFavorite(sig.Coin) {
			b.tg.SendTo(u.ChatID, "⭐ new signal for a favorite coin")
		}
		b.tg.SendTo(u.ChatID, text, voteRow(sig))
	}
}

// vote toggles a thumbs up or down. Voting the same way twice removes the
// vote, voting the other way moves it.
func (b *Bot) vote(msg telegram.Message, data string) (string, [][]telegram.Button) {
	id, dir, ok := strings.Cut(data, ":")
	if !ok || (dir != "up" && dir != "down") {
		return "invalid vote", nil
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	sig, err := b.store.Get(id)
	if err != nil {
		b.log(err)
		return "signal not found", nil
	}
	if sig.Voters == nil {
		sig.Voters = make(map[string]string)
	}
	voter := voterKey(msg)
	prev := sig.Voters[voter]
	switch prev {
	case dir:
		delete(sig.Voters, voter)
		count(sig, dir, -1)
	case "":
		sig.Voters[voter] = dir
		count(sig, dir, 1)
	default:
		sig.Voters[voter] = dir
		count(sig, prev, -1)
		count(sig, dir, 1)
	}
	if err := b.store.Put(sig); err != nil {
		b.log(err)
		return "couldn't save vote", nil
	}
	reply := "vote recorded"
	if prev == dir {
		reply = "vote removed"
	}
	return reply, [][]telegram.Button{voteRow(sig)}
}

func count(sig *signal.Signal, dir string, delta int) {
	if dir == "up" {
		sig.Upvotes += delta
		return
	}
	sig.Downvotes += delta
}

func (b *Bot) start(msg telegram.Message) {
	if _, err := b.users.Get(msg.ChatID); err != nil {
		u := &user.User{
			Name:       msg.Sender,
			Username:   msg.Username,
			ChatID:     msg.ChatID,
			Subscribed: true,
			JoinedDate: b.now().UTC().Format(signal.TimeLayout),
			Settings:   user.DefaultSettings(),
		}
		if err := b.users.Put(u); err != nil {
			b.log(err)
			return
		}
	}
	b.tg.SendTo(msg.ChatID, "👋 welcome to pump my bags\n"+helpText)
}

const helpText = `/subscribe - receive new signals
/unsubscribe - stop receiving signals
/signals - latest open signals
/signal <id> - show one signal
/price <coin> - current price
/coins - most called coins
/performance - closed signal stats
/stat - success rate per coin
/favorite <coin> - toggle a favorite coin
/settings - notification filters`

func (b *Bot) help(msg telegram.Message) {
	b.tg.SendTo(msg.ChatID, helpText)
}

func (b *Bot) subscribe(msg telegram.Message) {
	b.setSubscribed(msg, true, "🔔 subscribed")
}

func (b *Bot) unsubscribe(msg telegram.Message) {
	b.setSubscribed(msg, false, "🔕 unsubscribed")
}

func (b *Bot) setSubscribed(msg telegram.Message, subscribed bool, reply string) {
	u, err := b.userFor(msg)
	if err != nil {
		b.log(err)
		return
	}
	u.Subscribed = subscribed
	if err := b.users.Put(u); err != nil {
		b.log(err)
		return
	}
	b.tg.SendTo(msg.ChatID, reply)
}

// signals lists the five most recent open signals with their current price
// and vote counts. Price lookups go through the cache, so repeated calls
// within the expiry window don't hit the network.
func (b *Bot) signals(msg telegram.Message) {
	all, err := b.store.List()
	if err != nil {
		b.log(err)
		return
	}
	var open []*signal.Signal
	for _, sig := range all {
		if !sig.IsTerminal() {
			open = append(open, sig)
		}
	}
	if len(open) == 0 {
		b.tg.SendTo(msg.ChatID, "no open signals")
		return
	}
	if len(open) > 5 {
		open = open[len(open)-5:]
	}
	sb := &strings.Builder{}
	for _, sig := range open {
		fmt.Fprintf(sb, "%s", formatLine(sig))
		if p, err := b.oracle.Price(b.ctx, sig.Coin); err == nil {
			fmt.Fprintf(sb, " now %s", formatPrice(p))
		}
		fmt.Fprintf(sb, " 👍%d 👎%d\n", sig.Upvotes, sig.Downvotes)
	}
	b.tg.SendTo(msg.ChatID, sb.String())
}

func (b *Bot) price(msg telegram.Message) {
	coin := strings.ToUpper(strings.TrimSpace(msg.Payload))
	if coin == "" {
		b.tg.SendTo(msg.ChatID, "usage: /price <coin>")
		return
	}
	p, err := b.oracle.Price(b.ctx, coin)
	if err != nil {
		b.log(err)
		b.tg.SendTo(msg.ChatID, fmt.Sprintf("couldn't get price for %s", coin))
		return
	}
	b.tg.SendTo(msg.ChatID, fmt.Sprintf("💲 %s: %s USD", coin, formatPrice(p)))
}

func (b *Bot) coinStats(msg telegram.Message) {
	coins, err := b.coins.Coins()
	if err != nil {
		b.log(err)
		return
	}
	if len(coins) == 0 {
		b.tg.SendTo(msg.ChatID, "no coins tracked yet")
		return
	}
	type entry struct {
		coin string
		stat *signal.CoinStat
	}
	entries := make([]entry, 0, len(coins))
	for coin, stat := range coins {
		entries = append(entries, entry{coin: coin, stat: stat})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stat.SignalCount != entries[j].stat.SignalCount {
			return entries[i].stat.SignalCount > entries[j].stat.SignalCount
		}
		return entries[i].coin < entries[j].coin
	})
	sb := &strings.Builder{}
	for _, e := range entries {
		fmt.Fprintf(sb, "%s: %d signals, first seen %s\n", e.coin, e.stat.SignalCount, e.stat.FirstSeen)
	}
	b.tg.SendTo(msg.ChatID, sb.String())
}

func (b *Bot) performance(msg telegram.Message) {
	all, err := b.store.List()
	if err != nil {
		b.log(err)
		return
	}
	var pending, hits, stops, expired int
	var sum float64
	var measured int
	for _, sig := range all {
		switch sig.Status {
		case signal.StatusHitTarget:
			hits++
		case signal.StatusHitStopLoss:
			stops++
		case signal.StatusExpired:
			expired++
		default:
			pending++
			continue
		}
		if sig.Performance != nil {
			sum += *sig.Performance
			measured++
		}
	}
	closed := hits + stops + expired
	if closed == 0 {
		b.tg.SendTo(msg.ChatID, "no closed signals yet")
		return
	}
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "✅ hit target: %d\n", hits)
	fmt.Fprintf(sb, "❌ hit stop loss: %d\n", stops)
	fmt.Fprintf(sb, "⌛ expired: %d\n", expired)
	fmt.Fprintf(sb, "⏳ pending: %d\n", pending)
	fmt.Fprintf(sb, "win rate: %.1f%%\n", float64(hits)/float64(closed)*100)
	if measured > 0 {
		fmt.Fprintf(sb, "average return: %.2f%%", sum/float64(measured))
	}
	b.tg.SendTo(msg.ChatID, sb.String())
}

// stat breaks down the success rate per coin over closed signals.
func (b *Bot) stat(msg telegram.Message) {
	all, err := b.store.List()
	if err != nil {
		b.log(err)
		return
	}
	type tally struct {
		closed int
		hits   int
	}
	tallies := make(map[string]*tally)
	for _, sig := range all {
		if !sig.IsTerminal() || sig.Coin == "" {
			continue
		}
		t, ok := tallies[sig.Coin]
		if !ok {
			t = &tally{}
			tallies[sig.Coin] = t
		}
		t.closed++
		if sig.Status == signal.StatusHitTarget {
			t.hits++
		}
	}
	if len(tallies) == 0 {
		b.tg.SendTo(msg.ChatID, "no closed signals yet")
		return
	}
	coins := make([]string, 0, len(tallies))
	for coin := range tallies {
		coins = append(coins, coin)
	}
	sort.Slice(coins, func(i, j int) bool {
		ti, tj := tallies[coins[i]], tallies[coins[j]]
		if ti.closed != tj.closed {
			return ti.closed > tj.closed
		}
		return coins[i] < coins[j]
	})
	sb := &strings.Builder{}
	for _, coin := range coins {
		t := tallies[coin]
		fmt.Fprintf(sb, "%s: %d/%d hit target (%.0f%%)\n", coin, t.hits, t.closed, float64(t.hits)/float64(t.closed)*100)
	}
	b.tg.SendTo(msg.ChatID, sb.String())
}

func (b *Bot) signalDetail(msg telegram.Message) {
	id := strings.TrimSpace(msg.Payload)
	if id == "" {
		b.tg.SendTo(msg.ChatID, "usage: /signal <id>")
		return
	}
	sig, err := b.store.Get(id)
	if err != nil {
		b.log(err)
		b.tg.SendTo(msg.ChatID, fmt.Sprintf("signal %s not found", id))
		return
	}
	b.tg.SendTo(msg.ChatID, formatSignal(sig), voteRow(sig))
}

func (b *Bot) favorite(msg telegram.Message) {
	coin := strings.ToUpper(strings.TrimSpace(msg.Payload))
	if coin == "" {
		b.tg.SendTo(msg.ChatID, "usage: /favorite <coin>")
		return
	}
	u, err := b.userFor(msg)
	if err != nil {
		b.log(err)
		return
	}
	if u.IsFavorite(coin) {
		kept := u.FavoriteCoins[:0]
		for _, c := range u.FavoriteCoins {
			if c != coin {
				kept = append(kept, c)
			}
		}
		u.FavoriteCoins = kept
		if err := b.users.Put(u); err != nil {
			b.log(err)
			return
		}
		b.tg.SendTo(msg.ChatID, fmt.Sprintf("removed %s from favorites", coin))
		return
	}
	u.FavoriteCoins = append(u.FavoriteCoins, coin)
	if err := b.users.Put(u); err != nil {
		b.log(err)
		return
	}
	b.tg.SendTo(msg.ChatID, fmt.Sprintf("⭐ added %s to favorites", coin))
}

func (b *Bot) settings(msg telegram.Message) {
	u, err := b.userFor(msg)
	if err != nil {
		b.log(err)
		return
	}
	fields := strings.Fields(msg.Payload)
	if len(fields) == 0 {
		b.tg.SendTo(msg.ChatID, fmt.Sprintf(
			"all signals: %t\nfavorites only: %t\nrisk filter: %s\ntimeframe filter: %s\n\nusage: /settings <all|favorites> <on|off> or /settings <risk|timeframe> <value|ALL>",
			u.Settings.NotifyAllSignals, u.Settings.NotifyFavoritesOnly, u.Settings.RiskFilter, u.Settings.TimeframeFilter))
		return
	}
	if len(fields) != 2 {
		b.tg.SendTo(msg.ChatID, "usage: /settings <all|favorites> <on|off> or /settings <risk|timeframe> <value|ALL>")
		return
	}
	key := strings.ToLower(fields[0])
	value := strings.ToUpper(fields[1])
	switch key {
	case "all":
		u.Settings.NotifyAllSignals = value == "ON"
	case "favorites":
		u.Settings.NotifyFavoritesOnly = value == "ON"
	case "risk":
		if value != user.FilterAll && !contains(signal.RiskLevels, value) {
			b.tg.SendTo(msg.ChatID, fmt.Sprintf("unknown risk %s", value))
			return
		}
		u.Settings.RiskFilter = value
	case "timeframe":
		if value != user.FilterAll && !contains(signal.Timeframes, value) {
			b.tg.SendTo(msg.ChatID, fmt.Sprintf("unknown timeframe %s", value))
			return
		}
		u.Settings.TimeframeFilter = value
	default:
		b.tg.SendTo(msg.ChatID, fmt.Sprintf("unknown setting %s", key))
		return
	}
	if err := b.users.Put(u); err != nil {
		b.log(err)
		return
	}
	b.tg.SendTo(msg.ChatID, "settings updated")
}

// Update re-prices every open signal, persists the results and notifies
// subscribers about signals that closed on this pass.
func (b *Bot) Update(ctx context.Context) {
	b.lock.Lock()
	defer b.lock.Unlock()
	all, err := b.store.List()
	if err != nil {
		b.log(fmt.Errorf("pmb: couldn't list signals: %w", err))
		return
	}
	open := make(map[string]bool, len(all))
	for _, sig := range all {
		open[sig.ID] = !sig.IsTerminal()
	}
	b.updater.UpdateAll(ctx, all)
	var closed []*signal.Signal
	for _, sig := range all {
		if !open[sig.ID] {
			continue
		}
		if err := b.store.Put(sig); err != nil {
			b.log(err)
			continue
		}
		if sig.IsTerminal() {
			closed = append(closed, sig)
		}
	}
	if len(closed) == 0 {
		return
	}
	b.log(fmt.Sprintf("📊 %d signals closed on this pass", len(closed)))
	users, err := b.users.List()
	if err != nil {
		b.log(fmt.Errorf("pmb: couldn't list users: %w", err))
		return
	}
	for _, sig := range closed {
		text := formatCompletion(sig)
		for _, u := range users {
			if !u.WantsSignal(sig.Coin, sig.Risk, sig.Timeframe) {
				continue
			}
			b.tg.SendTo(u.ChatID, text)
		}
	}
}

func (b *Bot) shutdown() {
	b.cancel()
}

func (b *Bot) userFor(msg telegram.Message) (*user.User, error) {
	u, err := b.users.Get(msg.ChatID)
	if err == nil {
		return u, nil
	}
	u = &user.User{
		Name:       msg.Sender,
		Username:   msg.Username,
		ChatID:     msg.ChatID,
		Subscribed: true,
		JoinedDate: b.now().UTC().Format(signal.TimeLayout),
		Settings:   user.DefaultSettings(),
	}
	if err := b.users.Put(u); err != nil {
		return nil, fmt.Errorf("pmb: couldn't create user %d: %w", msg.ChatID, err)
	}
	return u, nil
}

func sender(msg telegram.Message) string {
	if msg.Username != "" {
		return "@" + msg.Username
	}
	return msg.Sender
}

func voterKey(msg telegram.Message) string {
	if msg.Username != "" {
		return "@" + msg.Username
	}
	if msg.Sender != "" {
		return msg.Sender
	}
	return strconv.FormatInt(msg.ChatID, 10)
}

func voteRow(sig *signal.Signal) []telegram.Button {
	return []telegram.Button{
		{Unique: "vote", Text: fmt.Sprintf("👍 %d", sig.Upvotes), Data: sig.ID + ":up"},
		{Unique: "vote", Text: fmt.Sprintf("👎 %d", sig.Downvotes), Data: sig.ID + ":down"},
	}
}

func positionEmoji(position string) string {
	if position == signal.PositionShort {
		return "📉"
	}
	return "📈"
}

func statusEmoji(status string) string {
	switch status {
	case signal.StatusHitTarget:
		return "✅"
	case signal.StatusHitStopLoss:
		return "❌"
	case signal.StatusExpired:
		return "⌛"
	default:
		return "⏳"
	}
}

func formatSignal(sig *signal.Signal) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%s signal %s: %s %s\n", positionEmoji(sig.Position), sig.ID, sig.Coin, sig.Position)
	if sig.LimitOrder != "" {
		fmt.Fprintf(sb, "entry: %s\n", sig.LimitOrder)
	}
	for _, tier := range sig.Tiers() {
		fmt.Fprintf(sb, "target %d: %s\n", tier, sig.TakeProfitTargets[tier])
	}
	if len(sig.TakeProfitTargets) == 0 && sig.TakeProfit != "" {
		fmt.Fprintf(sb, "target: %s\n", sig.TakeProfit)
	}
	if sig.StopLoss != "" {
		fmt.Fprintf(sb, "stop loss: %s\n", sig.StopLoss)
	}
	fmt.Fprintf(sb, "timeframe: %s, risk: %s\n", sig.Timeframe, sig.Risk)
	fmt.Fprintf(sb, "%s %s", statusEmoji(sig.Status), sig.Status)
	if sig.Performance != nil {
		fmt.Fprintf(sb, " (%.2f%%)", *sig.Performance)
	} else if sig.UnrealizedPerformance != nil {
		fmt.Fprintf(sb, " (%.2f%% unrealized)", *sig.UnrealizedPerformance)
	}
	return sb.String()
}

func formatLine(sig *signal.Signal) string {
	line := fmt.Sprintf("%s %s %s %s", positionEmoji(sig.Position), sig.ID, sig.Coin, sig.Position)
	if sig.TakeProfit != "" {
		line += fmt.Sprintf(" → %s", sig.TakeProfit)
	}
	if sig.UnrealizedPerformance != nil {
		line += fmt.Sprintf(" (%.2f%%)", *sig.UnrealizedPerformance)
	}
	return line
}

func formatCompletion(sig *signal.Signal) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%s signal %s closed: %s %s %s\n", statusEmoji(sig.Status), sig.ID, sig.Coin, sig.Position, sig.Status)
	if sig.HitTP > 0 {
		fmt.Fprintf(sb, "hit target %d\n", sig.HitTP)
	}
	if sig.ExitPrice != nil {
		fmt.Fprintf(sb, "exit price: %s\n", formatPrice(*sig.ExitPrice))
	}
	if sig.Performance != nil {
		fmt.Fprintf(sb, "return: %.2f%%", *sig.Performance)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
