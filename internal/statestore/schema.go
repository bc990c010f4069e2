package statestore

// schemaStatements create the state schema. Each statement is idempotent.
//
// locations picks exactly one row per identity: the newest timestamp, and
// the last inserted among rows sharing it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS location_history (
		ident TEXT NOT NULL,
		location_name TEXT NOT NULL,
		location_angle INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS location_history_ident_ts
		ON location_history(ident, timestamp)`,
	`CREATE VIEW IF NOT EXISTS latest_ident_update AS
		SELECT ident, MAX(timestamp) AS timestamp
		FROM location_history
		GROUP BY ident`,
	`CREATE VIEW IF NOT EXISTS locations AS
		SELECT lh.ident, lh.location_name, lh.location_angle, lh.timestamp
		FROM location_history lh
		JOIN latest_ident_update liu
			ON lh.ident = liu.ident AND lh.timestamp = liu.timestamp
		WHERE lh.rowid = (
			SELECT MAX(h.rowid) FROM location_history h
			WHERE h.ident = lh.ident AND h.timestamp = lh.timestamp
		)`,
	`CREATE TRIGGER IF NOT EXISTS save_location_history
		INSTEAD OF INSERT ON locations
		FOR EACH ROW
		BEGIN
			INSERT INTO location_history(ident, location_name, location_angle, timestamp)
				VALUES (NEW.ident, NEW.location_name, NEW.location_angle, NEW.timestamp);
		END`,
}

const insertLocationSQL = `INSERT INTO locations(ident, location_name, location_angle, timestamp)
	VALUES (?, ?, ?, ?)`

const selectLatestSQL = `SELECT ident, location_name, location_angle, timestamp
	FROM locations
	ORDER BY ident`
