package postgres

// Schema migrations. The unique index on (account_id, pgn_hash) is the
// dedup guarantee; the remaining indexes serve the analytics queries.
var migrations = []string{
	createAccountTable,
	createAccountIndexes,
	createGameTable,
	createGameIndexes,
	createJobTable,
	createJobIndexes,
}

const createAccountTable = `
CREATE TABLE IF NOT EXISTS account (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    platform VARCHAR(20) NOT NULL,
    username VARCHAR(100) NOT NULL,
    label VARCHAR(100),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_sync_at TIMESTAMPTZ
);
`

const createAccountIndexes = `
CREATE UNIQUE INDEX IF NOT EXISTS uk_account_platform_username
    ON account (platform, lower(username));
`

const createGameTable = `
CREATE TABLE IF NOT EXISTS game (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES account (id) ON DELETE CASCADE,
    played_at TIMESTAMPTZ NOT NULL,
    result VARCHAR(10) NOT NULL,
    color VARCHAR(10) NOT NULL,
    time_control_raw VARCHAR(50),
    time_control_category VARCHAR(20) NOT NULL,
    eco_code VARCHAR(10),
    opening_name VARCHAR(255),
    opponent VARCHAR(100),
    pgn_hash CHAR(64) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const createGameIndexes = `
CREATE UNIQUE INDEX IF NOT EXISTS uk_game_account_hash ON game (account_id, pgn_hash);
CREATE INDEX IF NOT EXISTS idx_game_played_at ON game (played_at);
CREATE INDEX IF NOT EXISTS idx_game_account ON game (account_id);
CREATE INDEX IF NOT EXISTS idx_game_time_control ON game (time_control_category);
`

const createJobTable = `
CREATE TABLE IF NOT EXISTS import_job (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES account (id) ON DELETE CASCADE,
    file_name VARCHAR(255),
    status VARCHAR(20) NOT NULL,
    total_games INT,
    processed_games INT NOT NULL DEFAULT 0,
    duplicate_games INT NOT NULL DEFAULT 0,
    archives_processed INT,
    total_archives INT,
    error_message VARCHAR(1000),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at TIMESTAMPTZ
);
`

const createJobIndexes = `
CREATE INDEX IF NOT EXISTS idx_job_account_status ON import_job (account_id, status);
`
