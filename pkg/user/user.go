// Package user holds subscriber records and their notification preferences.
package user

// FilterAll disables a category filter.
const FilterAll = "ALL"

// Settings controls which signal broadcasts a subscriber receives.
type Settings struct {
	NotifyAllSignals    bool   `json:"notify_all_signals"`
	NotifyFavoritesOnly bool   `json:"notify_favorites_only"`
	RiskFilter          string `json:"risk_filter"`
	TimeframeFilter     string `json:"timeframe_filter"`
}

func DefaultSettings() Settings {
	return Settings{
		NotifyAllSignals:    true,
		NotifyFavoritesOnly: false,
		RiskFilter:          FilterAll,
		TimeframeFilter:     FilterAll,
	}
}

type User struct {
	Name          string   `json:"name"`
	Username      string   `json:"username"`
	ChatID        int64    `json:"chat_id"`
	Subscribed    bool     `json:"subscribed"`
	JoinedDate    string   `json:"joined_date"`
	FavoriteCoins []string `json:"favorite_coins"`
	Settings      Settings `json:"settings"`
}

// IsFavorite reports whether the user tracks the coin.
func (u *User) IsFavorite(coin string) bool {
	for _, c := range u.FavoriteCoins {
		if c == coin {
			return true
		}
	}
	return false
}

// WantsSignal applies the user's notification preferences to a signal.
// Favorites-only mode overrides all other filters, otherwise the user must
// have broadcasts enabled and the signal must pass both category filters.
func (u *User) WantsSignal(coin, risk, timeframe string) bool {
	if !u.Subscribed {
		return false
	}
	if u.Settings.NotifyFavoritesOnly {
		return u.IsFavorite(coin)
	}
	if !u.Settings.NotifyAllSignals {
		return false
	}
	if u.Settings.RiskFilter != "" && u.Settings.RiskFilter != FilterAll && u.Settings.RiskFilter != risk {
		return false
	}
	if u.Settings.TimeframeFilter != "" && u.Settings.TimeframeFilter != FilterAll && u.Settings.TimeframeFilter != timeframe {
		return false
	}
	return true
}

// Store is a collection of users keyed by chat id.
type Store interface {
	List() ([]*User, error)
	Get(chatID int64) (*User, error)
	Put(*User) error
}
