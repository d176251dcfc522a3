package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/ride-sharing/internal/models"
)

const (
	usersFile    = "users.csv"
	placesFile   = "places.txt"
	roadsFile    = "roads.txt"
	offersFile   = "offers.csv"
	requestsFile = "requests.csv"
	historyFile  = "history.csv"
)

// ErrUnwritableRoad is returned by FileStore.Save for a road whose endpoint
// names cannot be written as single whitespace-separated fields.
var ErrUnwritableRoad = errors.New("road name not representable in road file")

// FileStore keeps a snapshot as one file per store under Dir. roads.txt uses
// the road-file format, so a saved directory can also seed a fresh process.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

func (f *FileStore) Save(_ context.Context, s *Snapshot) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	users := make([][]string, 0, len(s.Users))
	for _, u := range s.Users {
		users = append(users, []string{itoa(u.ID), u.Name, string(u.Role), itoa(u.Rating), itoa(u.CompletedRides)})
	}
	offers := make([][]string, 0, len(s.Offers))
	for _, o := range s.Offers {
		offers = append(offers, []string{itoa(o.OfferID), itoa(o.DriverID), o.Start, o.End, itoa(o.DepartTime), itoa(o.Capacity), itoa(o.SeatsLeft)})
	}
	reqs := make([][]string, 0, len(s.Requests))
	for _, r := range s.Requests {
		reqs = append(reqs, []string{itoa(r.RequestID), itoa(r.PassengerID), r.From, r.To, itoa(r.Earliest), itoa(r.Latest)})
	}
	hist := make([][]string, 0, len(s.History))
	for _, h := range s.History {
		hist = append(hist, []string{itoa(h.UserID), itoa(h.OfferID), h.From, h.To, itoa(h.DepartTime)})
	}

	// users.csv goes last: Load treats its presence as the snapshot marker.
	writes := []struct {
		name  string
		write func(io.Writer) error
	}{
		{placesFile, func(w io.Writer) error {
			for _, p := range s.Places {
				if _, err := fmt.Fprintln(w, p); err != nil {
					return err
				}
			}
			return nil
		}},
		{roadsFile, func(w io.Writer) error {
			for _, r := range s.Roads {
				if !roadField(r.From) || !roadField(r.To) {
					return fmt.Errorf("%w: %q -> %q", ErrUnwritableRoad, r.From, r.To)
				}
				if _, err := fmt.Fprintf(w, "%s %s %d\n", r.From, r.To, r.Cost); err != nil {
					return err
				}
			}
			return nil
		}},
		{offersFile, csvWriter(offers)},
		{requestsFile, csvWriter(reqs)},
		{historyFile, csvWriter(hist)},
		{usersFile, csvWriter(users)},
	}

	// Every file is staged before any is renamed, so a failed write leaves
	// the previous snapshot in place.
	staged := make([]string, 0, len(writes))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()
	for _, wr := range writes {
		tmp, err := f.writeTemp(wr.name, wr.write)
		if err != nil {
			return fmt.Errorf("write %s: %w", wr.name, err)
		}
		staged = append(staged, tmp)
	}
	for i, wr := range writes {
		if err := os.Rename(staged[i], filepath.Join(f.Dir, wr.name)); err != nil {
			return fmt.Errorf("replace %s: %w", wr.name, err)
		}
	}
	return nil
}

func (f *FileStore) Load(_ context.Context) (*Snapshot, error) {
	if _, err := os.Stat(filepath.Join(f.Dir, usersFile)); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	s := &Snapshot{}

	rows, err := f.readCSV(usersFile, 5)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		n, err := atois(row, 0, 3, 4)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", usersFile, i+1, err)
		}
		s.Users = append(s.Users, models.User{ID: n[0], Name: row[1], Role: models.Role(row[2]), Rating: n[1], CompletedRides: n[2]})
	}

	lines, err := f.readLines(placesFile)
	if err != nil {
		return nil, err
	}
	s.Places = lines

	lines, err = f.readLines(roadsFile)
	if err != nil {
		return nil, err
	}
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s line %d: want 3 fields", roadsFile, i+1)
		}
		cost, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", roadsFile, i+1, err)
		}
		s.Roads = append(s.Roads, models.Road{From: fields[0], To: fields[1], Cost: cost})
	}

	if rows, err = f.readCSV(offersFile, 7); err != nil {
		return nil, err
	}
	for i, row := range rows {
		n, err := atois(row, 0, 1, 4, 5, 6)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", offersFile, i+1, err)
		}
		s.Offers = append(s.Offers, models.OfferSummary{
			OfferID: n[0], DriverID: n[1], Start: row[2], End: row[3],
			DepartTime: n[2], Capacity: n[3], SeatsLeft: n[4],
		})
	}

	if rows, err = f.readCSV(requestsFile, 6); err != nil {
		return nil, err
	}
	for i, row := range rows {
		n, err := atois(row, 0, 1, 4, 5)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", requestsFile, i+1, err)
		}
		s.Requests = append(s.Requests, models.RequestSummary{
			RequestID: n[0], PassengerID: n[1], From: row[2], To: row[3],
			Earliest: n[2], Latest: n[3],
		})
	}

	if rows, err = f.readCSV(historyFile, 5); err != nil {
		return nil, err
	}
	for i, row := range rows {
		n, err := atois(row, 0, 1, 4)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", historyFile, i+1, err)
		}
		s.History = append(s.History, models.HistoryEntry{UserID: n[0], OfferID: n[1], From: row[2], To: row[3], DepartTime: n[2]})
	}
	return s, nil
}

// writeTemp writes a temp file next to name and returns its path.
func (f *FileStore) writeTemp(name string, write func(io.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(f.Dir, name+".*.tmp")
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriter(tmp)
	err = write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// readCSV returns no rows for a missing file.
func (f *FileStore) readCSV(name string, fields int) ([][]string, error) {
	fh, err := os.Open(filepath.Join(f.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	r := csv.NewReader(fh)
	r.FieldsPerRecord = fields
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return rows, nil
}

func (f *FileStore) readLines(name string) ([]string, error) {
	fh, err := os.Open(filepath.Join(f.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	var out []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out, nil
}

func csvWriter(rows [][]string) func(io.Writer) error {
	return func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	}
}

func atois(row []string, idx ...int) ([]int, error) {
	out := make([]int, len(idx))
	for i, j := range idx {
		n, err := strconv.Atoi(row[j])
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func itoa(n int) string { return strconv.Itoa(n) }

func roadField(name string) bool {
	return name != "" && !strings.ContainsAny(name, " \t\r\n")
}
