// Package demo holds a small customer/order model used by the CLI and by
// tests across the module.
package demo

import (
	"github.com/satishbabariya/objql/query/mapping"
)

// Status of an order.
type Status string

const (
	StatusOpen    Status = "open"
	StatusShipped Status = "shipped"
)

type Customer struct {
	ID     int64    `orm:"id,pk,computed"`
	Name   string   `orm:"name"`
	City   *string  `orm:"city"`
	Orders []*Order `orm:",many=CustomerID"`
}

type Order struct {
	ID         int64     `orm:"id,pk,computed"`
	CustomerID int64     `orm:"customer_id"`
	Total      float64   `orm:"total"`
	Status     Status    `orm:"status"`
	Customer   *Customer `orm:",ref=CustomerID"`
	Lines      []*Line   `orm:",many=OrderID"`

	modified bool
}

// SetTotal records the change for the modification tracker.
func (o *Order) SetTotal(v float64) {
	o.Total = v
	o.modified = true
}

// Modified reports whether a setter ran since the last reset.
func (o *Order) Modified() bool { return o.modified }

// ResetModified clears the modification flag after materialization.
func (o *Order) ResetModified() { o.modified = false }

type Line struct {
	ID       int64  `orm:"id,pk,computed"`
	OrderID  int64  `orm:"order_id"`
	Product  string `orm:"product"`
	Quantity int64  `orm:"quantity"`
}

// Model returns a model with the demo entities registered.
func Model() *mapping.Model {
	m := mapping.MustNewModel(Customer{}, Order{}, Line{})
	m.RegisterEnum(Status(""))
	return m
}

// Schema creates the demo tables. It is written in the subset of SQL
// understood by every supported database.
const Schema = `
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, city TEXT);
CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL, total REAL NOT NULL, status TEXT NOT NULL);
CREATE TABLE lines (id INTEGER PRIMARY KEY, order_id INTEGER NOT NULL, product TEXT NOT NULL, quantity INTEGER NOT NULL);
`

// Seed inserts a few rows into the demo tables.
const Seed = `
INSERT INTO customers (id, name, city) VALUES (1, 'Ada', 'London'), (2, 'Linus', NULL), (3, 'Grace', 'Arlington');
INSERT INTO orders (id, customer_id, total, status) VALUES
  (10, 1, 250, 'open'), (11, 1, 75, 'shipped'), (12, 2, 120, 'open'), (13, 3, 40, 'shipped');
INSERT INTO lines (id, order_id, product, quantity) VALUES
  (100, 10, 'keyboard', 1), (101, 10, 'mouse', 2), (102, 12, 'monitor', 1);
`
