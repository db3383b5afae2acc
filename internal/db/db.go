package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collector-simulator/internal/route"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// LoadRoute reads the vertices and stops of routeID, both ordered by seq.
//
// Tables:
//
//	route_vertices(route_id, seq, lon, lat)            or (route_id, seq, geom)
//	route_stops(route_id, seq, stop_id, name, lon, lat) or (..., name, geom)
//
// geom columns are PostGIS points and are read with ST_X/ST_Y.
func LoadRoute(ctx context.Context, db *sql.DB, routeID string) (route.Route, []route.Stop, error) {
	vq, err := pickQuery(ctx, db, "route_vertices", vertexQueries)
	if err != nil {
		return nil, nil, err
	}
	rows, err := db.QueryContext(ctx, vq, routeID)
	if err != nil {
		return nil, nil, fmt.Errorf("query route_vertices: %w", err)
	}
	var r route.Route
	for rows.Next() {
		var lon, lat float64
		if err := rows.Scan(&lon, &lat); err != nil {
			rows.Close()
			return nil, nil, err
		}
		r = append(r, route.C(lon, lat))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(r) == 0 {
		return nil, nil, fmt.Errorf("route %q has no vertices", routeID)
	}

	sq, err := pickQuery(ctx, db, "route_stops", stopQueries)
	if err != nil {
		return nil, nil, err
	}
	rows, err = db.QueryContext(ctx, sq, routeID)
	if err != nil {
		return nil, nil, fmt.Errorf("query route_stops: %w", err)
	}
	defer rows.Close()
	var stops []route.Stop
	for rows.Next() {
		var s route.Stop
		var lon, lat float64
		if err := rows.Scan(&s.ID, &s.Name, &lon, &lat); err != nil {
			return nil, nil, err
		}
		s.Location = route.C(lon, lat)
		stops = append(stops, s)
	}
	return r, stops, rows.Err()
}

type layoutQueries struct {
	lonLat string
	geom   string
}

var vertexQueries = layoutQueries{
	lonLat: `SELECT lon, lat FROM route_vertices WHERE route_id = $1 ORDER BY seq`,
	geom: `SELECT ST_X(geom::geometry), ST_Y(geom::geometry)
             FROM route_vertices WHERE route_id = $1 ORDER BY seq`,
}

var stopQueries = layoutQueries{
	lonLat: `SELECT stop_id, COALESCE(name, stop_id), lon, lat
             FROM route_stops WHERE route_id = $1 ORDER BY seq`,
	geom: `SELECT stop_id, COALESCE(name, stop_id), ST_X(geom::geometry), ST_Y(geom::geometry)
             FROM route_stops WHERE route_id = $1 ORDER BY seq`,
}

func pickQuery(ctx context.Context, db *sql.DB, table string, q layoutQueries) (string, error) {
	cols, err := hasColumns(ctx, db, "public", table, "lon", "lat", "geom")
	if err != nil {
		return "", fmt.Errorf("introspect %s columns: %w", table, err)
	}
	return chooseLayout(table, cols, q)
}

// chooseLayout prefers plain lon/lat columns and falls back to a PostGIS geom column.
func chooseLayout(table string, cols map[string]bool, q layoutQueries) (string, error) {
	if cols["lon"] && cols["lat"] {
		return q.lonLat, nil
	}
	if cols["geom"] {
		return q.geom, nil
	}
	return "", fmt.Errorf("%s table missing expected columns (lon/lat or geom)", table)
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
