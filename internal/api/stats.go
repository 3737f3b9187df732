package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kebairia/dbsnap/internal/backup"
	"github.com/kebairia/dbsnap/internal/database"
)

// Accounts with group_id 0 are regular players; staff accounts are excluded
// from every statistic.
const (
	totalAccountsQuery = "SELECT COUNT(*) AS count FROM login WHERE group_id = 0"

	activeAccountsQuery = "SELECT COUNT(*) AS count FROM login WHERE lastlogin >= ? AND group_id = 0"

	totalCharactersQuery = "SELECT COUNT(*) AS count FROM `char` c " +
		"JOIN login l ON c.account_id = l.account_id " +
		"WHERE c.delete_date = 0 AND l.group_id = 0"

	activeCharactersQuery = "SELECT COUNT(*) AS count FROM `char` c " +
		"JOIN login l ON c.account_id = l.account_id " +
		"WHERE c.delete_date = 0 AND c.last_login >= ? AND l.group_id = 0"

	highestLevelQuery = "SELECT c.base_level AS max_level, COUNT(*) AS max_level_count FROM `char` c " +
		"JOIN login l ON c.account_id = l.account_id " +
		"WHERE c.delete_date = 0 AND l.group_id = 0 AND c.base_level = (" +
		"SELECT MAX(ch.base_level) FROM `char` ch JOIN login lg ON ch.account_id = lg.account_id " +
		"WHERE ch.delete_date = 0 AND lg.group_id = 0) " +
		"GROUP BY c.base_level"

	averageLevelQuery = "SELECT AVG(c.base_level) AS avg_level FROM `char` c " +
		"JOIN login l ON c.account_id = l.account_id " +
		"WHERE c.delete_date = 0 AND l.group_id = 0"

	totalGuildsQuery = "SELECT COUNT(*) AS count FROM guild"

	characterZenyQuery = "SELECT c.account_id, CAST(SUM(c.zeny) AS CHAR) AS zeny FROM `char` c " +
		"JOIN login l ON c.account_id = l.account_id " +
		"WHERE c.delete_date = 0 AND l.group_id = 0 " +
		"GROUP BY c.account_id"

	bankZenyQuery = "SELECT a.account_id, CAST(a.bank_vault AS CHAR) AS bank_vault FROM account_data a " +
		"JOIN login l ON a.account_id = l.account_id " +
		"WHERE l.group_id = 0"
)

const lastLoginLayout = "2006-01-02 15:04:05"

// Stats is the /stats response body.
type Stats struct {
	Timestamp  time.Time      `json:"timestamp"`
	Accounts   AccountStats   `json:"accounts"`
	Characters CharacterStats `json:"characters"`
	Guilds     GuildStats     `json:"guilds"`
	Economy    EconomyStats   `json:"economy"`
}

type AccountStats struct {
	Total          int64 `json:"total"`
	ActiveLastWeek int64 `json:"activeLastWeek"`
}

type CharacterStats struct {
	Total         int64 `json:"total"`
	ActiveLast24h int64 `json:"activeLast24h"`
	HighestLevel  int64 `json:"highestLevel"`
	AverageLevel  int64 `json:"averageLevel"`
	MaxLevelCount int64 `json:"maxLevelCount"`
}

type GuildStats struct {
	Total int64 `json:"total"`
}

// EconomyStats carries zeny figures. Totals are always decimal strings;
// averages are numbers unless they exceed the safe integer range.
type EconomyStats struct {
	TotalZeny             string `json:"totalZeny"`
	BankZeny              string `json:"bankZeny"`
	AverageZenyPerChar    any    `json:"averageZenyPerChar"`
	AverageZenyPerAccount any    `json:"averageZenyPerAccount"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.collectStats(r.Context())
	if err != nil {
		s.writeError(w, "failed to fetch statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) collectStats(ctx context.Context) (*Stats, error) {
	now := s.now().UTC()
	stats := &Stats{Timestamp: now}

	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.Accounts.Total, totalAccountsQuery, nil},
		{&stats.Accounts.ActiveLastWeek, activeAccountsQuery, []any{now.AddDate(0, 0, -7).Format(lastLoginLayout)}},
		{&stats.Characters.Total, totalCharactersQuery, nil},
		{&stats.Characters.ActiveLast24h, activeCharactersQuery, []any{now.Add(-24 * time.Hour).Unix()}},
		{&stats.Guilds.Total, totalGuildsQuery, nil},
	}
	for _, c := range counts {
		rs, err := s.querier.Query(ctx, c.query, c.args...)
		if err != nil {
			return nil, err
		}
		if *c.dst, err = scalarInt(rs, "count"); err != nil {
			return nil, err
		}
	}

	rs, err := s.querier.Query(ctx, highestLevelQuery)
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) > 0 {
		if stats.Characters.HighestLevel, err = scalarInt(rs, "max_level"); err != nil {
			return nil, err
		}
		if stats.Characters.MaxLevelCount, err = scalarInt(rs, "max_level_count"); err != nil {
			return nil, err
		}
	}

	rs, err = s.querier.Query(ctx, averageLevelQuery)
	if err != nil {
		return nil, err
	}
	if stats.Characters.AverageLevel, err = roundedAverage(rs.Value(0, "avg_level")); err != nil {
		return nil, err
	}

	if stats.Economy, err = s.collectEconomy(ctx, stats.Characters.Total); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Server) collectEconomy(ctx context.Context, characters int64) (EconomyStats, error) {
	bankRS, err := s.querier.Query(ctx, bankZenyQuery)
	if err != nil {
		return EconomyStats{}, err
	}
	bank := make(map[string]*big.Int, len(bankRS.Rows))
	totalBank := new(big.Int)
	for i := range bankRS.Rows {
		v, err := bigValue(bankRS.Value(i, "bank_vault"))
		if err != nil {
			return EconomyStats{}, fmt.Errorf("bank_vault: %w", err)
		}
		bank[accountKey(bankRS.Value(i, "account_id"))] = v
		totalBank.Add(totalBank, v)
	}

	charRS, err := s.querier.Query(ctx, characterZenyQuery)
	if err != nil {
		return EconomyStats{}, err
	}
	totalChar := new(big.Int)
	accountsTotal := new(big.Int)
	for i := range charRS.Rows {
		v, err := bigValue(charRS.Value(i, "zeny"))
		if err != nil {
			return EconomyStats{}, fmt.Errorf("zeny: %w", err)
		}
		totalChar.Add(totalChar, v)
		accountsTotal.Add(accountsTotal, v)
		if b, ok := bank[accountKey(charRS.Value(i, "account_id"))]; ok {
			accountsTotal.Add(accountsTotal, b)
		}
	}

	return EconomyStats{
		TotalZeny:             new(big.Int).Add(totalChar, totalBank).String(),
		BankZeny:              totalBank.String(),
		AverageZenyPerChar:    jsonInteger(quotient(totalChar, characters)),
		AverageZenyPerAccount: jsonInteger(quotient(accountsTotal, int64(len(charRS.Rows)))),
	}, nil
}

func quotient(total *big.Int, n int64) *big.Int {
	if n <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(total, big.NewInt(n))
}

// jsonInteger returns v as an int64 when it is exactly representable as a
// JSON number, and as decimal text otherwise.
func jsonInteger(v *big.Int) any {
	if v.IsInt64() {
		n := v.Int64()
		if n <= backup.MaxSafeInteger && n >= -backup.MaxSafeInteger {
			return n
		}
	}
	return v.String()
}

// scalarInt reads an integer column from the first row of rs.
func scalarInt(rs *database.ResultSet, column string) (int64, error) {
	if rs == nil || len(rs.Rows) == 0 {
		return 0, fmt.Errorf("%w: no rows for %s", database.ErrQueryFailed, column)
	}
	v, err := bigValue(rs.Value(0, column))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("%s: %s overflows int64", column, v)
	}
	return v.Int64(), nil
}

var errNotInteger = errors.New("not an integer")

// bigValue converts a driver value to an integer. NULL counts as zero.
func bigValue(value any) (*big.Int, error) {
	switch v := value.(type) {
	case nil:
		return new(big.Int), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errNotInteger
		}
		b, _ := big.NewFloat(v).Int(nil)
		return b, nil
	case []byte:
		return parseBig(string(v))
	case string:
		return parseBig(v)
	default:
		return nil, fmt.Errorf("%w: %T", errNotInteger, value)
	}
}

func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	// Aggregates over DECIMAL columns may carry a zero fraction.
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" {
		s = whole
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errNotInteger, s)
	}
	return v, nil
}

// roundedAverage rounds an AVG() result, which the driver returns as
// DECIMAL text, to the nearest integer.
func roundedAverage(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(math.Round(v)), nil
	case []byte:
		return roundedAverage(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("average level: %w", err)
		}
		return int64(math.Round(f)), nil
	default:
		n, err := bigValue(value)
		if err != nil {
			return 0, err
		}
		return n.Int64(), nil
	}
}

func accountKey(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
