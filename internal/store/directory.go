package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/recipients/internal/address"
	"github.com/roach88/recipients/internal/recipient"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Directory reads and writes recipient rows.
// Obtain one from Store.Directory or Store.RunInTx.
type Directory struct {
	q querier
}

const recipientColumns = `_id, number, aci, pni, username, contact, profile, profile_key, profile_key_credential, unregistered_at`

// liveRows excludes rows whose identifiers were cleared during a merge.
const liveRows = `NOT (number IS NULL AND aci IS NULL AND pni IS NULL)`

// ListFilter narrows List results.
type ListFilter struct {
	// Blocked restricts the result to recipients whose contact is blocked.
	Blocked bool
	// ContactsOnly restricts the result to recipients with contact metadata.
	ContactsOnly bool
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row selected with recipientColumns.
// A row whose identifiers were all cleared yields a zero Address.
func scanRecord(row rowScanner) (recipient.Record, error) {
	var (
		rec                     recipient.Record
		number, aci, pni, uname sql.NullString
		contact, profile        sql.NullString
		key, credential         []byte
		unregistered            sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &number, &aci, &pni, &uname, &contact, &profile, &key, &credential, &unregistered); err != nil {
		return recipient.Record{}, err
	}

	if number.Valid || aci.Valid || pni.Valid {
		addr, err := address.Parse(aci.String, pni.String, number.String, uname.String)
		if err != nil {
			return recipient.Record{}, fmt.Errorf("recipient %d: %w", rec.ID, err)
		}
		rec.Address = addr
	}

	var err error
	if rec.Contact, err = unmarshalContact(contact); err != nil {
		return recipient.Record{}, fmt.Errorf("recipient %d: %w", rec.ID, err)
	}
	if rec.Profile, err = unmarshalProfile(profile); err != nil {
		return recipient.Record{}, fmt.Errorf("recipient %d: %w", rec.ID, err)
	}
	if key != nil {
		rec.ProfileKey = recipient.ProfileKey(key)
	}
	if credential != nil {
		rec.ProfileKeyCredential = recipient.ProfileKeyCredential(credential)
	}
	if unregistered.Valid {
		rec.UnregisteredAt = time.UnixMilli(unregistered.Int64)
	}
	return rec, nil
}

// Get returns the full row for id, or ErrNotFound.
func (d *Directory) Get(ctx context.Context, id int64) (*recipient.Record, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+recipientColumns+` FROM recipient WHERE _id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get recipient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get recipient %d", id), err)
	}
	return &rec, nil
}

// findOne returns the row matching a single-column equality, or nil.
func (d *Directory) findOne(ctx context.Context, column, value string) (*recipient.Record, error) {
	if value == "" {
		return nil, nil
	}
	row := d.q.QueryRowContext(ctx,
		`SELECT `+recipientColumns+` FROM recipient WHERE `+column+` = ? ORDER BY _id LIMIT 1`, value)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("find by "+column, err)
	}
	return &rec, nil
}

// FindByNumber returns the recipient with this E164 number, or nil.
func (d *Directory) FindByNumber(ctx context.Context, number string) (*recipient.Record, error) {
	return d.findOne(ctx, "number", number)
}

// FindByACI returns the recipient with this ACI, or nil.
func (d *Directory) FindByACI(ctx context.Context, aci address.ACI) (*recipient.Record, error) {
	return d.findOne(ctx, "aci", aci.String())
}

// FindByPNI returns the recipient with this PNI, or nil.
func (d *Directory) FindByPNI(ctx context.Context, pni address.PNI) (*recipient.Record, error) {
	return d.findOne(ctx, "pni", pni.RawString())
}

// FindByUsername returns the first recipient with this normalized username, or nil.
// Usernames are not unique in storage.
func (d *Directory) FindByUsername(ctx context.Context, username string) (*recipient.Record, error) {
	return d.findOne(ctx, "username", username)
}

// FindAllOverlapping returns every recipient sharing at least one of addr's
// ACI, PNI or number, ordered by id. At most three rows can match.
func (d *Directory) FindAllOverlapping(ctx context.Context, addr address.Address) ([]recipient.Record, error) {
	var (
		conds []string
		args  []any
	)
	if addr.HasACI() {
		conds = append(conds, "aci = ?")
		args = append(args, addr.ACI().String())
	}
	if addr.HasPNI() {
		conds = append(conds, "pni = ?")
		args = append(args, addr.PNI().RawString())
	}
	if addr.HasNumber() {
		conds = append(conds, "number = ?")
		args = append(args, addr.Number())
	}
	if len(conds) == 0 {
		return nil, nil
	}

	rows, err := d.q.QueryContext(ctx,
		`SELECT `+recipientColumns+` FROM recipient WHERE `+strings.Join(conds, " OR ")+` ORDER BY _id ASC`, args...)
	if err != nil {
		return nil, wrapErr("find overlapping", err)
	}
	defer rows.Close()

	var out []recipient.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrapErr("scan overlapping", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate overlapping", err)
	}
	return out, nil
}

// List returns all live recipients ordered by id.
func (d *Directory) List(ctx context.Context, filter ListFilter) ([]recipient.Record, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipient WHERE ` + liveRows
	if filter.ContactsOnly || filter.Blocked {
		query += ` AND contact IS NOT NULL`
	}
	rows, err := d.q.QueryContext(ctx, query+` ORDER BY _id ASC`)
	if err != nil {
		return nil, wrapErr("list recipients", err)
	}
	defer rows.Close()

	out := []recipient.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, wrapErr("scan recipient", err)
		}
		if filter.Blocked && (rec.Contact == nil || !rec.Contact.Blocked) {
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate recipients", err)
	}
	return out, nil
}

// Count returns the number of live recipients.
func (d *Directory) Count(ctx context.Context) (int, error) {
	var n int
	err := d.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipient WHERE `+liveRows).Scan(&n)
	if err != nil {
		return 0, wrapErr("count recipients", err)
	}
	return n, nil
}

// Create inserts a recipient carrying only addr's identifiers and returns its id.
// Returns ErrUniqueness if another row already holds one of them.
func (d *Directory) Create(ctx context.Context, addr address.Address) (int64, error) {
	if addr.IsZero() {
		return 0, fmt.Errorf("create recipient: %w", address.ErrNoIdentifier)
	}
	res, err := d.q.ExecContext(ctx, `
		INSERT INTO recipient (number, aci, pni, username)
		VALUES (?, ?, ?, ?)
	`,
		nullString(addr.Number()),
		nullString(addr.ACI().String()),
		nullString(addr.PNI().RawString()),
		nullString(addr.Username()),
	)
	if err != nil {
		return 0, wrapErr("create recipient", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapErr("create recipient: last insert id", err)
	}
	return id, nil
}

// exec runs a single-row UPDATE or DELETE and maps "no row" to ErrNotFound.
func (d *Directory) exec(ctx context.Context, op string, id int64, query string, args ...any) error {
	res, err := d.q.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: recipient %d: %w", op, id, ErrNotFound)
	}
	return nil
}

// OverwriteIdentifiers replaces the number, ACI, PNI and username wholesale.
func (d *Directory) OverwriteIdentifiers(ctx context.Context, id int64, addr address.Address) error {
	if addr.IsZero() {
		return fmt.Errorf("overwrite identifiers: %w", address.ErrNoIdentifier)
	}
	return d.exec(ctx, "overwrite identifiers", id, `
		UPDATE recipient SET number = ?, aci = ?, pni = ?, username = ?
		WHERE _id = ?
	`,
		nullString(addr.Number()),
		nullString(addr.ACI().String()),
		nullString(addr.PNI().RawString()),
		nullString(addr.Username()),
		id,
	)
}

// ClearIdentifiers nulls the number, ACI, PNI and username of a row that is
// about to be merged away, freeing them for the surviving row.
func (d *Directory) ClearIdentifiers(ctx context.Context, id int64) error {
	return d.exec(ctx, "clear identifiers", id, `
		UPDATE recipient SET number = NULL, aci = NULL, pni = NULL, username = NULL
		WHERE _id = ?
	`, id)
}

// Delete removes the row and everything it owns.
func (d *Directory) Delete(ctx context.Context, id int64) error {
	return d.exec(ctx, "delete recipient", id, `DELETE FROM recipient WHERE _id = ?`, id)
}

// Contact returns the contact metadata, nil if never set.
func (d *Directory) Contact(ctx context.Context, id int64) (*recipient.Contact, error) {
	var col sql.NullString
	err := d.q.QueryRowContext(ctx, `SELECT contact FROM recipient WHERE _id = ?`, id).Scan(&col)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get contact: recipient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("get contact", err)
	}
	return unmarshalContact(col)
}

// StoreContact replaces the contact metadata. A nil contact clears it.
func (d *Directory) StoreContact(ctx context.Context, id int64, c *recipient.Contact) error {
	col, err := marshalContact(c)
	if err != nil {
		return err
	}
	return d.exec(ctx, "store contact", id, `UPDATE recipient SET contact = ? WHERE _id = ?`, col, id)
}

// DeleteContact clears the contact metadata and keeps everything else.
func (d *Directory) DeleteContact(ctx context.Context, id int64) error {
	return d.StoreContact(ctx, id, nil)
}

// Profile returns the stored profile, nil if never set.
func (d *Directory) Profile(ctx context.Context, id int64) (*recipient.Profile, error) {
	var col sql.NullString
	err := d.q.QueryRowContext(ctx, `SELECT profile FROM recipient WHERE _id = ?`, id).Scan(&col)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get profile: recipient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("get profile", err)
	}
	return unmarshalProfile(col)
}

// StoreProfile replaces the profile. A nil profile clears it.
func (d *Directory) StoreProfile(ctx context.Context, id int64, p *recipient.Profile) error {
	col, err := marshalProfile(p)
	if err != nil {
		return err
	}
	return d.exec(ctx, "store profile", id, `UPDATE recipient SET profile = ? WHERE _id = ?`, col, id)
}

// ProfileKey returns the stored profile key, nil if unknown.
func (d *Directory) ProfileKey(ctx context.Context, id int64) (recipient.ProfileKey, error) {
	var key []byte
	err := d.q.QueryRowContext(ctx, `SELECT profile_key FROM recipient WHERE _id = ?`, id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get profile key: recipient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("get profile key", err)
	}
	if key == nil {
		return nil, nil
	}
	return recipient.ProfileKey(key), nil
}

// StoreProfileKey writes a profile key and reports whether anything changed.
//
// Writing the key that is already stored is a no-op when the stored profile's
// unidentified access mode has been validated (ENABLED or UNRESTRICTED).
// Otherwise the key is written and the profile key credential, which was
// derived from the old key, is cleared. With fullUpdate the profile's last
// update time is also reset so the profile is fetched again.
func (d *Directory) StoreProfileKey(ctx context.Context, id int64, key recipient.ProfileKey, fullUpdate bool) (bool, error) {
	var (
		storedKey []byte
		profCol   sql.NullString
	)
	err := d.q.QueryRowContext(ctx, `SELECT profile_key, profile FROM recipient WHERE _id = ?`, id).
		Scan(&storedKey, &profCol)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("store profile key: recipient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, wrapErr("store profile key", err)
	}
	profile, err := unmarshalProfile(profCol)
	if err != nil {
		return false, err
	}

	if key != nil && key.Equal(storedKey) && profile != nil && profile.UnidentifiedAccessMode.IsKnown() {
		return false, nil
	}

	if fullUpdate && profile != nil {
		profile.LastUpdate = time.Time{}
	}
	newProfCol, err := marshalProfile(profile)
	if err != nil {
		return false, err
	}

	err = d.exec(ctx, "store profile key", id, `
		UPDATE recipient SET profile_key = ?, profile_key_credential = NULL, profile = ?
		WHERE _id = ?
	`, nullBytes(key), newProfCol, id)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ProfileKeyCredential returns the stored credential, nil if unknown.
func (d *Directory) ProfileKeyCredential(ctx context.Context, id int64) (recipient.ProfileKeyCredential, error) {
	var cred []byte
	err := d.q.QueryRowContext(ctx, `SELECT profile_key_credential FROM recipient WHERE _id = ?`, id).Scan(&cred)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get profile key credential: recipient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr("get profile key credential", err)
	}
	if cred == nil {
		return nil, nil
	}
	return recipient.ProfileKeyCredential(cred), nil
}

// StoreProfileKeyCredential replaces the credential. nil clears it.
func (d *Directory) StoreProfileKeyCredential(ctx context.Context, id int64, cred recipient.ProfileKeyCredential) error {
	return d.exec(ctx, "store profile key credential", id,
		`UPDATE recipient SET profile_key_credential = ? WHERE _id = ?`, nullBytes(cred), id)
}

// DeleteRecipientData clears contact, profile, profile key and credential.
// The identifiers stay so the recipient keeps its handle.
func (d *Directory) DeleteRecipientData(ctx context.Context, id int64) error {
	return d.exec(ctx, "delete recipient data", id, `
		UPDATE recipient
		SET contact = NULL, profile = NULL, profile_key = NULL, profile_key_credential = NULL
		WHERE _id = ?
	`, id)
}

// MarkUnregistered records when the server reported the recipient unregistered.
// A zero time clears the mark.
func (d *Directory) MarkUnregistered(ctx context.Context, id int64, at time.Time) error {
	var col sql.NullInt64
	if !at.IsZero() {
		col = sql.NullInt64{Int64: at.UnixMilli(), Valid: true}
	}
	return d.exec(ctx, "mark unregistered", id, `UPDATE recipient SET unregistered_at = ? WHERE _id = ?`, col, id)
}
