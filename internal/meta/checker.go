package meta

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Check verifies the connection, the privileges and the binlog settings
// needed to read row based binlogs.
func (c *Client) Check(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to MySQL server: %w", err)
	}
	c.logger.Info("Successfully connected to MySQL server")

	if err := c.checkGrants(ctx); err != nil {
		return err
	}

	logBin, err := c.variable(ctx, "log_bin")
	if err != nil {
		c.logger.Warn("Could not verify binlog status")
	} else if logBin != "ON" && logBin != "1" {
		return fmt.Errorf("binary logging (log_bin) is not enabled. Current value: %s", logBin)
	}

	format, err := c.variable(ctx, "binlog_format")
	if err == nil && format != "ROW" {
		c.logger.Warnf("binlog_format is set to '%s', only ROW events can be translated", format)
	}

	image, err := c.variable(ctx, "binlog_row_image")
	if err == nil && image != "FULL" {
		c.logger.Warnf("binlog_row_image is set to '%s', statements need FULL row images to be exact", image)
	}

	return nil
}

func (c *Client) checkGrants(ctx context.Context) error {
	requiredPrivs := []string{
		"REPLICATION SLAVE",
		"REPLICATION CLIENT",
		"SELECT",
	}

	// SHOW GRANTS can return multiple rows
	rows, err := c.db.QueryContext(ctx, "SHOW GRANTS FOR CURRENT_USER()")
	if err != nil {
		rows, err = c.db.QueryContext(ctx, "SHOW GRANTS")
		if err != nil {
			return fmt.Errorf("failed to check grants: %w", err)
		}
	}
	defer rows.Close()

	var grants []string
	for rows.Next() {
		var grant string
		if err := rows.Scan(&grant); err != nil {
			return fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating grants: %w", err)
	}

	if missing := missingPrivileges(grants, requiredPrivs); len(missing) > 0 {
		return fmt.Errorf("missing required permissions: %s. Current grants: %s",
			strings.Join(missing, ", "), strings.Join(grants, "; "))
	}
	c.logger.Info("All required permissions verified")
	return nil
}

func missingPrivileges(grants, required []string) []string {
	all := strings.ToUpper(strings.Join(grants, "; "))
	if strings.Contains(all, "ALL PRIVILEGES ON *.*") {
		return nil
	}
	var missing []string
	for _, priv := range required {
		if !strings.Contains(all, priv) {
			missing = append(missing, priv)
		}
	}
	return missing
}

// variable reads a global server variable. name is always one of the
// constants above, never user input.
func (c *Client) variable(ctx context.Context, name string) (string, error) {
	var value sql.NullString
	err := c.db.QueryRowContext(ctx, "SELECT @@GLOBAL."+name).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	if !value.Valid {
		return "", fmt.Errorf("variable %s is not set", name)
	}
	return strings.ToUpper(value.String), nil
}
