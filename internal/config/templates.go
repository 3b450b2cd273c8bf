package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrTemplateCreated is returned when a missing file was replaced by a
// template that needs filling in.
var ErrTemplateCreated = errors.New("created template")

const configTemplate = `# Bracket Trader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Exchange: NSE, BSE
exchange = "NSE"
# Product type: MIS, CNC, NRML
product = "MIS"
# Symbols watched for opening range breakouts
tickers = ["INFY", "TCS", "SBIN"]
# Starting capital of the paper broker in INR
paper_capital = 1000000.0

[risk]
# Fraction of capital risked per trade
risk_fraction = 0.01
# Target distance as a multiple of the stop distance
reward_to_risk = 2.0

[execution]
# Attempts per leg on transport errors
retry_count = 3
# Delay before attempt n is n times this
retry_delay = "2s"
# Rejection codes that trigger a single market-order fallback for the entry
restriction_codes = ["AB4036", "INSTRUMENT_RESTRICTED"]
# Rejection message fragments mapped to INSTRUMENT_RESTRICTED
restriction_hints = ["cautionary", "circuit", "price band"]
# Entry order type: LIMIT or MARKET
entry_order_type = "LIMIT"
# Brokerage calls per second
pacing_rate = 2.5
pacing_burst = 1
# HTTP timeout for brokerage calls
timeout = "10s"

[strategy]
# Last bar start (IST) included in the opening range
opening_range_end = "09:19"
# Bars averaged for the volume confirmation
volume_lookback = 10
# Entry = LTP plus or minus this offset in INR
entry_offset = 1.0
# Stop distance as a fraction of entry
stop_pct = 0.02
bar_interval = "5minute"
history_days = 5
# Bar fetch attempts and linear delay
bar_retries = 5
bar_retry_delay = "10s"
fetch_concurrency = 4

[session]
# Trading window in IST
start = "09:20"
end = "15:10"
# Cycles run on wall-clock multiples of this interval
polling_interval = "5m"

[logging]
level = "info"
console = true
file = true
# Defaults to logs/trader.log in the config directory
path = ""

[metrics]
enabled = false
listen = "127.0.0.1:9102"

[store]
# Defaults to journal.db and session.json in the config directory
path = ""
session_path = ""
`

const credentialsTemplate = `# Bracket Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.
# Values may also come from KITE_* environment variables or a .env file.

[kite]
api_key = ""
api_secret = ""
user_id = ""
# Optional, enables TOTP auto-login
password = ""
totp_secret = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, %w at %s", ErrTemplateCreated, path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, %w at %s", ErrTemplateCreated, path)
}
