package database

import (
	"context"
	"database/sql"
	"fmt"

	"courtbook/internal/models"
)

// AllSports returns the sport catalog.
func (db *DB) AllSports(ctx context.Context) ([]models.Sport, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, COALESCE(description, '') FROM sports ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list sports: %w", err)
	}
	defer rows.Close()

	var sports []models.Sport
	for rows.Next() {
		var s models.Sport
		if err := rows.Scan(&s.ID, &s.Name, &s.Description); err != nil {
			return nil, err
		}
		sports = append(sports, s)
	}
	return sports, rows.Err()
}

// AllCities returns all cities.
func (db *DB) AllCities(ctx context.Context) ([]models.City, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, COALESCE(address, ''), COALESCE(phone, ''), COALESCE(email, '')
		FROM cities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	var cities []models.City
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.ID, &c.Name, &c.Address, &c.Phone, &c.Email); err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// CentresByCity returns active centres for a city.
func (db *DB) CentresByCity(ctx context.Context, cityID int64) ([]models.Centre, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, city_id, COALESCE(address, ''), COALESCE(phone, ''),
		       open_time, close_time, is_active
		FROM centres WHERE city_id = ? AND is_active = 1 ORDER BY name`,
		cityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list centres: %w", err)
	}
	defer rows.Close()

	var centres []models.Centre
	for rows.Next() {
		var c models.Centre
		if err := rows.Scan(
			&c.ID, &c.Name, &c.CityID, &c.Address, &c.Phone,
			&c.OpenTime, &c.CloseTime, &c.IsActive,
		); err != nil {
			return nil, err
		}
		centres = append(centres, c)
	}
	return centres, rows.Err()
}

const terrainColumns = `t.id, t.name, t.centre_id, t.sport_id, COALESCE(t.surface, ''),
	       t.capacity, t.hourly_price, t.is_active, s.name, c.name
	FROM terrains t
	JOIN sports s ON t.sport_id = s.id
	JOIN centres c ON t.centre_id = c.id`

// TerrainsBySportAndCentre returns active terrains for a sport at a centre.
func (db *DB) TerrainsBySportAndCentre(ctx context.Context, sportID, centreID int64) ([]models.Terrain, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+terrainColumns+`
		WHERE t.sport_id = ? AND t.centre_id = ? AND t.is_active = 1
		ORDER BY t.name`,
		sportID, centreID,
	)
	if err != nil {
		return nil, fmt.Errorf("list terrains: %w", err)
	}
	defer rows.Close()
	return scanTerrains(rows)
}

// AllTerrains returns every terrain, including blocked ones. Admin surface.
func (db *DB) AllTerrains(ctx context.Context) ([]models.Terrain, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+terrainColumns+`
		ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("list terrains: %w", err)
	}
	defer rows.Close()
	return scanTerrains(rows)
}

// TerrainByID returns a terrain with its display names.
func (db *DB) TerrainByID(ctx context.Context, id int64) (*models.Terrain, error) {
	var t models.Terrain
	err := db.QueryRowContext(ctx, `
		SELECT `+terrainColumns+`
		WHERE t.id = ?`,
		id,
	).Scan(
		&t.ID, &t.Name, &t.CentreID, &t.SportID, &t.Surface,
		&t.Capacity, &t.HourlyPrice, &t.IsActive, &t.SportName, &t.CentreName,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get terrain: %w", err)
	}
	return &t, nil
}

// BlockTerrain marks a terrain inactive so new bookings are rejected.
// Existing confirmed reservations are left untouched.
func (db *DB) BlockTerrain(ctx context.Context, id int64, reason string) error {
	result, err := db.ExecContext(ctx,
		"UPDATE terrains SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("block terrain: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	db.logger.Info().Int64("terrain_id", id).Str("reason", reason).Msg("terrain blocked")
	return nil
}

func scanTerrains(rows *sql.Rows) ([]models.Terrain, error) {
	var terrains []models.Terrain
	for rows.Next() {
		var t models.Terrain
		if err := rows.Scan(
			&t.ID, &t.Name, &t.CentreID, &t.SportID, &t.Surface,
			&t.Capacity, &t.HourlyPrice, &t.IsActive, &t.SportName, &t.CentreName,
		); err != nil {
			return nil, err
		}
		terrains = append(terrains, t)
	}
	return terrains, rows.Err()
}
