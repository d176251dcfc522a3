package users

import (
	"errors"
	"sort"

	"github.com/example/ride-sharing/internal/models"
)

var ErrUnknownUser = errors.New("unknown user")

type node struct {
	user        *models.User
	left, right *node
}

// Registry is an ordered dictionary of users keyed by id, kept in an
// unbalanced binary search tree. It is not safe for concurrent use.
type Registry struct {
	root    *node
	size    int
	drivers int
}

func NewRegistry() *Registry { return &Registry{} }

// Register inserts a user, or replaces name and role of an existing one
// while keeping its rating and completed ride count.
func (r *Registry) Register(id int, name string, role models.Role) *models.User {
	if u, ok := r.Lookup(id); ok {
		if u.IsDriver() {
			r.drivers--
		}
		u.Name = name
		u.Role = role
		if u.IsDriver() {
			r.drivers++
		}
		return u
	}
	u := &models.User{ID: id, Name: name, Role: role}
	r.insert(u)
	return u
}

// Restore inserts a fully populated user record, replacing any existing one.
func (r *Registry) Restore(rec models.User) *models.User {
	u := r.Register(rec.ID, rec.Name, rec.Role)
	u.Rating = rec.Rating
	u.CompletedRides = rec.CompletedRides
	return u
}

func (r *Registry) insert(u *models.User) {
	n := &node{user: u}
	r.size++
	if u.IsDriver() {
		r.drivers++
	}
	if r.root == nil {
		r.root = n
		return
	}
	cur := r.root
	for {
		if u.ID < cur.user.ID {
			if cur.left == nil {
				cur.left = n
				return
			}
			cur = cur.left
		} else {
			if cur.right == nil {
				cur.right = n
				return
			}
			cur = cur.right
		}
	}
}

func (r *Registry) Lookup(id int) (*models.User, bool) {
	cur := r.root
	for cur != nil {
		switch {
		case id < cur.user.ID:
			cur = cur.left
		case id > cur.user.ID:
			cur = cur.right
		default:
			return cur.user, true
		}
	}
	return nil, false
}

func (r *Registry) PassengerExists(id int) bool {
	u, ok := r.Lookup(id)
	return ok && !u.IsDriver()
}

func (r *Registry) DriverExists(id int) bool {
	u, ok := r.Lookup(id)
	return ok && u.IsDriver()
}

func (r *Registry) RecordCompletion(id int) error {
	u, ok := r.Lookup(id)
	if !ok {
		return ErrUnknownUser
	}
	u.CompletedRides++
	return nil
}

func (r *Registry) SetRating(id, rating int) error {
	u, ok := r.Lookup(id)
	if !ok {
		return ErrUnknownUser
	}
	u.Rating = rating
	return nil
}

func (r *Registry) Len() int { return r.size }

// All returns every user in ascending id order.
func (r *Registry) All() []*models.User {
	out := make([]*models.User, 0, r.size)
	r.walk(func(u *models.User) { out = append(out, u) })
	return out
}

// TopDrivers returns up to k drivers by completed rides, then rating, both
// descending, then id ascending. Returned values are copies.
func (r *Registry) TopDrivers(k int) []models.User {
	drivers := make([]models.User, 0, r.drivers)
	r.walk(func(u *models.User) {
		if u.IsDriver() {
			drivers = append(drivers, *u)
		}
	})
	sort.SliceStable(drivers, func(i, j int) bool {
		a, b := drivers[i], drivers[j]
		if a.CompletedRides != b.CompletedRides {
			return a.CompletedRides > b.CompletedRides
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.ID < b.ID
	})
	if k < 0 {
		k = 0
	}
	if k > len(drivers) {
		k = len(drivers)
	}
	return drivers[:k]
}

// walk visits users in order without recursion so a degenerate tree built
// from sorted ids cannot exhaust the stack.
func (r *Registry) walk(fn func(*models.User)) {
	var stack []*node
	cur := r.root
	for cur != nil || len(stack) > 0 {
		for cur != nil {
			stack = append(stack, cur)
			cur = cur.left
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(cur.user)
		cur = cur.right
	}
}
