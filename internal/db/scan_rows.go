package db

import "database/sql"

// ScanRow scans the current row of rows into n normalized values.
func ScanRow(rows *sql.Rows, n int, d Dialect) ([]interface{}, error) {
	values := make([]interface{}, n)
	valuePtrs := make([]interface{}, n)
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	for i := range values {
		values[i] = NormalizeValue(d, values[i])
	}
	return values, nil
}
