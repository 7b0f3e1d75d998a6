package journal

const Schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created TEXT NOT NULL,
	symbol TEXT NOT NULL,
	short_window INTEGER NOT NULL,
	long_window INTEGER NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	bars INTEGER NOT NULL,
	initial_capital REAL NOT NULL,
	fee_pct REAL NOT NULL,
	final_value REAL NOT NULL,
	return_pct REAL NOT NULL,
	trades INTEGER NOT NULL,
	fees_paid REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger (
	run_id TEXT NOT NULL REFERENCES backtest_runs(run_id),
	seq INTEGER NOT NULL,
	date TEXT NOT NULL,
	close REAL NOT NULL,
	target TEXT NOT NULL,
	cash REAL NOT NULL,
	shares REAL NOT NULL,
	total REAL NOT NULL,
	fee REAL NOT NULL,
	traded INTEGER NOT NULL,
	action TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`
