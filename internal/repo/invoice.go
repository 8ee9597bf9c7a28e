package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/identity"
	"github.com/pkordes/lesson-invoices/backend/internal/ingest"
)

// InvoiceRepo is the durable record store for uploaded invoice files, their
// rows and their column lists.
//
// Save, Delete, Replace and Merge each run in a single transaction: either
// every file, row and column change is committed or none is. Their errors wrap
// domain.ErrStore.
type InvoiceRepo interface {
	// FindByHash returns the stored file with the given content hash.
	// Returns domain.ErrNotFound if no file has that hash.
	FindByHash(ctx context.Context, hash string) (domain.StoredFile, error)

	// FindByFilename returns the stored file with the given filename.
	// Returns domain.ErrNotFound if no file has that name.
	FindByFilename(ctx context.Context, filename string) (domain.StoredFile, error)

	// Save inserts a file with all its rows and columns and returns the new file ID.
	Save(ctx context.Context, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error)

	// Delete removes a file; its rows and columns are removed by cascade.
	// Returns domain.ErrNotFound if the file does not exist.
	Delete(ctx context.Context, fileID uuid.UUID) error

	// Replace deletes fileID and saves pf in its place.
	Replace(ctx context.Context, fileID uuid.UUID, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error)

	// Merge keeps every stored row of fileID, appends the rows of pf whose row
	// key is not already present, and stores the result as a new file.
	// Columns are unioned and declared totals summed.
	Merge(ctx context.Context, fileID uuid.UUID, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error)

	// ListFiles returns every stored file in upload order.
	ListFiles(ctx context.Context) ([]domain.StoredFile, error)

	// RowsByFile returns the rows of one file in spreadsheet order, projected
	// onto that file's columns.
	RowsByFile(ctx context.Context, fileID uuid.UUID) ([]domain.Row, error)

	// AllRows returns the aggregate view across every stored file.
	AllRows(ctx context.Context) (domain.Aggregate, error)

	// GetRow returns one stored row.
	// Returns domain.ErrNotFound if the row does not exist.
	GetRow(ctx context.Context, rowID uuid.UUID) (domain.Row, error)

	// SetKilometers updates the distance of one row without touching its data.
	// Returns domain.ErrNotFound if the row does not exist.
	SetKilometers(ctx context.Context, rowID uuid.UUID, km float64) error

	// SetKilometersBatch applies several distance updates in one transaction.
	// Updates for rows that no longer exist are ignored.
	SetKilometersBatch(ctx context.Context, updates []domain.KilometerUpdate) error
}

// pgInvoiceRepo is the Postgres implementation of InvoiceRepo.
type pgInvoiceRepo struct {
	db db
}

// NewInvoiceRepo constructs an InvoiceRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewInvoiceRepo(db db) InvoiceRepo {
	return &pgInvoiceRepo{db: db}
}

const fileColumns = `f.id, f.filename, f.content_hash, f.uploaded_at, f.total_amount::text,
		(SELECT count(*) FROM invoice_rows r WHERE r.file_id = f.id)`

// FindByHash looks a file up by its unique content hash.
func (r *pgInvoiceRepo) FindByHash(ctx context.Context, hash string) (domain.StoredFile, error) {
	q := `SELECT ` + fileColumns + ` FROM invoice_files f WHERE f.content_hash = @hash`

	result, err := scanFile(r.db.QueryRow(ctx, q, pgx.NamedArgs{"hash": hash}))
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("repo.InvoiceRepo.FindByHash: %w", err)
	}
	return result, nil
}

// FindByFilename looks a file up by its unique filename.
func (r *pgInvoiceRepo) FindByFilename(ctx context.Context, filename string) (domain.StoredFile, error) {
	q := `SELECT ` + fileColumns + ` FROM invoice_files f WHERE f.filename = @filename`

	result, err := scanFile(r.db.QueryRow(ctx, q, pgx.NamedArgs{"filename": filename}))
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("repo.InvoiceRepo.FindByFilename: %w", err)
	}
	return result, nil
}

// Save inserts the file, its columns and its rows in one transaction.
func (r *pgInvoiceRepo) Save(ctx context.Context, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error) {
	var id uuid.UUID
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		id, err = insertFile(ctx, tx, filename, hash, pf.TotalAmount, pf.Columns, pf.Rows)
		return err
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("repo.InvoiceRepo.Save: %w: %w", domain.ErrStore, err)
	}
	return id, nil
}

// Delete removes the file row; ON DELETE CASCADE removes rows and columns.
func (r *pgInvoiceRepo) Delete(ctx context.Context, fileID uuid.UUID) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return deleteFile(ctx, tx, fileID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("repo.InvoiceRepo.Delete: %w", err)
	}
	if err != nil {
		return fmt.Errorf("repo.InvoiceRepo.Delete: %w: %w", domain.ErrStore, err)
	}
	return nil
}

// Replace deletes the old file and saves the new content in one transaction.
func (r *pgInvoiceRepo) Replace(ctx context.Context, fileID uuid.UUID, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error) {
	var id uuid.UUID
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := deleteFile(ctx, tx, fileID); err != nil {
			return err
		}
		var err error
		id, err = insertFile(ctx, tx, filename, hash, pf.TotalAmount, pf.Columns, pf.Rows)
		return err
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("repo.InvoiceRepo.Replace: %w: %w", domain.ErrStore, err)
	}
	return id, nil
}

// Merge reads the stored file inside the transaction, so the set of existing
// keys cannot change between the read and the rewrite.
func (r *pgInvoiceRepo) Merge(ctx context.Context, fileID uuid.UUID, filename, hash string, pf domain.ParsedFile) (uuid.UUID, error) {
	var id uuid.UUID
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		existing, err := scanFile(tx.QueryRow(ctx,
			`SELECT `+fileColumns+` FROM invoice_files f WHERE f.id = @id FOR UPDATE`,
			pgx.NamedArgs{"id": fileID}))
		if err != nil {
			return err
		}
		oldCols, err := columnsByFile(ctx, tx, fileID)
		if err != nil {
			return err
		}
		oldRows, err := rowsByFile(ctx, tx, fileID)
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(oldRows))
		for _, row := range oldRows {
			seen[identity.RowKey(row)] = true
		}
		rows := oldRows
		for _, row := range pf.Rows {
			if !seen[identity.RowKey(row)] {
				rows = append(rows, row)
			}
		}

		if err := deleteFile(ctx, tx, fileID); err != nil {
			return err
		}
		cols := domain.UnionColumns(oldCols, pf.Columns)
		id, err = insertFile(ctx, tx, filename, hash, existing.TotalAmount.Add(pf.TotalAmount), cols, rows)
		return err
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("repo.InvoiceRepo.Merge: %w: %w", domain.ErrStore, err)
	}
	return id, nil
}

// ListFiles returns every stored file, oldest upload first.
func (r *pgInvoiceRepo) ListFiles(ctx context.Context) ([]domain.StoredFile, error) {
	q := `SELECT ` + fileColumns + ` FROM invoice_files f ORDER BY f.seq`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.InvoiceRepo.ListFiles: %w", err)
	}
	defer rows.Close()

	files := []domain.StoredFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.InvoiceRepo.ListFiles: scan: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.InvoiceRepo.ListFiles: rows: %w", err)
	}
	return files, nil
}

// RowsByFile returns one file's rows in spreadsheet order.
func (r *pgInvoiceRepo) RowsByFile(ctx context.Context, fileID uuid.UUID) ([]domain.Row, error) {
	cols, err := columnsByFile(ctx, r.db, fileID)
	if err != nil {
		return nil, fmt.Errorf("repo.InvoiceRepo.RowsByFile: %w", err)
	}
	rows, err := rowsByFile(ctx, r.db, fileID)
	if err != nil {
		return nil, fmt.Errorf("repo.InvoiceRepo.RowsByFile: %w", err)
	}
	for i := range rows {
		rows[i] = rows[i].Project(cols)
	}
	return rows, nil
}

// AllRows builds the aggregate view by combining every stored file in upload
// order with ingest.Combine.
func (r *pgInvoiceRepo) AllRows(ctx context.Context) (domain.Aggregate, error) {
	files, err := r.ListFiles(ctx)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("repo.InvoiceRepo.AllRows: %w", err)
	}

	const colQ = `
		SELECT c.file_id, c.name
		FROM invoice_columns c
		JOIN invoice_files f ON f.id = c.file_id
		ORDER BY f.seq, c.position`
	colRows, err := r.db.Query(ctx, colQ)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("repo.InvoiceRepo.AllRows: columns: %w", err)
	}
	columns := map[uuid.UUID][]string{}
	var (
		fileID pgtype.UUID
		name   string
	)
	if _, err := pgx.ForEachRow(colRows, []any{&fileID, &name}, func() error {
		id := uuid.UUID(fileID.Bytes)
		columns[id] = append(columns[id], name)
		return nil
	}); err != nil {
		return domain.Aggregate{}, fmt.Errorf("repo.InvoiceRepo.AllRows: columns: %w", err)
	}

	const rowQ = `
		SELECT r.id, r.file_id, r.data, r.kilometers
		FROM invoice_rows r
		JOIN invoice_files f ON f.id = r.file_id
		ORDER BY f.seq, r.position`
	rows, err := queryRows(ctx, r.db, rowQ, nil)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("repo.InvoiceRepo.AllRows: %w", err)
	}
	byFile := map[uuid.UUID][]domain.Row{}
	for _, row := range rows {
		byFile[row.FileID] = append(byFile[row.FileID], row)
	}

	parsed := make([]domain.ParsedFile, len(files))
	for i, f := range files {
		parsed[i] = domain.ParsedFile{
			Filename:    f.Filename,
			Columns:     columns[f.ID],
			Rows:        byFile[f.ID],
			TotalAmount: f.TotalAmount,
		}
	}
	combined := ingest.Combine(parsed...)

	agg := domain.Aggregate{
		Files:       files,
		Columns:     combined.Columns,
		Rows:        combined.Rows,
		TotalAmount: combined.TotalAmount,
	}
	if agg.Columns == nil {
		agg.Columns = []string{}
	}
	return agg, nil
}

// GetRow returns a single row by primary key.
func (r *pgInvoiceRepo) GetRow(ctx context.Context, rowID uuid.UUID) (domain.Row, error) {
	const q = `SELECT r.id, r.file_id, r.data, r.kilometers FROM invoice_rows r WHERE r.id = @id`

	row, err := scanRow(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": rowID}))
	if err != nil {
		return domain.Row{}, fmt.Errorf("repo.InvoiceRepo.GetRow: %w", err)
	}
	return row, nil
}

// SetKilometers writes only the kilometers column of one row.
func (r *pgInvoiceRepo) SetKilometers(ctx context.Context, rowID uuid.UUID, km float64) error {
	const q = `UPDATE invoice_rows SET kilometers = @km WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": rowID, "km": km})
	if err != nil {
		return fmt.Errorf("repo.InvoiceRepo.SetKilometers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.InvoiceRepo.SetKilometers: %w", domain.ErrNotFound)
	}
	return nil
}

// SetKilometersBatch queues one UPDATE per row and sends them together.
func (r *pgInvoiceRepo) SetKilometersBatch(ctx context.Context, updates []domain.KilometerUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	const q = `UPDATE invoice_rows SET kilometers = @km WHERE id = @id`

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range updates {
			batch.Queue(q, pgx.NamedArgs{"id": u.RowID, "km": u.Kilometers})
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("repo.InvoiceRepo.SetKilometersBatch: %w", err)
	}
	return nil
}

// ---- transaction helpers ---------------------------------------------------

// insertFile writes a file record, its ordered columns and its ordered rows.
// Row kilometers are written as given, so merged rows keep computed distances.
func insertFile(ctx context.Context, tx pgx.Tx, filename, hash string, total decimal.Decimal, cols []string, rows []domain.Row) (uuid.UUID, error) {
	const fileQ = `
		INSERT INTO invoice_files (filename, content_hash, total_amount)
		VALUES (@filename, @hash, @total::numeric)
		RETURNING id`

	var id uuid.UUID
	err := tx.QueryRow(ctx, fileQ, pgx.NamedArgs{
		"filename": filename,
		"hash":     hash,
		"total":    total.String(),
	}).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert file: %w", err)
	}

	batch := &pgx.Batch{}
	for i, c := range cols {
		batch.Queue(`INSERT INTO invoice_columns (file_id, position, name) VALUES (@file_id, @position, @name)`,
			pgx.NamedArgs{"file_id": id, "position": i, "name": c})
	}
	for i, row := range rows {
		data, err := encodeRow(row)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		batch.Queue(`INSERT INTO invoice_rows (file_id, position, data, kilometers) VALUES (@file_id, @position, @data, @km)`,
			pgx.NamedArgs{"file_id": id, "position": i, "data": string(data), "km": row.Kilometers})
	}
	if batch.Len() == 0 {
		return id, nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return uuid.Nil, fmt.Errorf("insert rows: %w", err)
	}
	return id, nil
}

func deleteFile(ctx context.Context, tx pgx.Tx, fileID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM invoice_files WHERE id = @id`, pgx.NamedArgs{"id": fileID})
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func columnsByFile(ctx context.Context, q db, fileID uuid.UUID) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT name FROM invoice_columns WHERE file_id = @id ORDER BY position`,
		pgx.NamedArgs{"id": fileID})
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	return cols, nil
}

func rowsByFile(ctx context.Context, q db, fileID uuid.UUID) ([]domain.Row, error) {
	const rowQ = `
		SELECT r.id, r.file_id, r.data, r.kilometers
		FROM invoice_rows r
		WHERE r.file_id = @id
		ORDER BY r.position`
	return queryRows(ctx, q, rowQ, pgx.NamedArgs{"id": fileID})
}

func queryRows(ctx context.Context, q db, sql string, args pgx.NamedArgs) ([]domain.Row, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if args == nil {
		rows, err = q.Query(ctx, sql)
	} else {
		rows, err = q.Query(ctx, sql, args)
	}
	if err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	defer rows.Close()

	out := []domain.Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("rows: scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// scanFile maps a single database row into a domain.StoredFile.
// total_amount is selected as text to keep decimal precision.
func scanFile(s scanner) (domain.StoredFile, error) {
	var (
		f     domain.StoredFile
		id    pgtype.UUID
		total string
		count int64
	)
	err := s.Scan(&id, &f.Filename, &f.ContentHash, &f.UploadedAt, &total, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StoredFile{}, domain.ErrNotFound
		}
		return domain.StoredFile{}, err
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("total_amount %q: %w", total, err)
	}
	f.ID = uuid.UUID(id.Bytes)
	f.TotalAmount = amount
	f.RowCount = int(count)
	return f, nil
}

// scanRow maps an invoice_rows record into a domain.Row.
func scanRow(s scanner) (domain.Row, error) {
	var (
		id, fileID pgtype.UUID
		data       []byte
		km         pgtype.Float8
	)
	if err := s.Scan(&id, &fileID, &data, &km); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Row{}, domain.ErrNotFound
		}
		return domain.Row{}, err
	}
	row, err := decodeRow(data)
	if err != nil {
		return domain.Row{}, err
	}
	row.ID = uuid.UUID(id.Bytes)
	row.FileID = uuid.UUID(fileID.Bytes)
	if km.Valid {
		v := km.Float64
		row.Kilometers = &v
	}
	return row, nil
}
