package mapping

// ColumnInfo locates the physical column behind a property path.
type ColumnInfo struct {
	// Owner is the entity whose table holds the column.
	Owner    *Entity
	Property *Property
	Column   string
	// Path is the chain of property names that led to the column.
	Path []string
	// Depth counts the references followed to reach Owner.
	Depth int
}

// ResolveColumn follows a property path to its column. Reaching a key of a
// referenced entity resolves to the owner's foreign key column, so no join
// is needed for it.
func (e *Entity) ResolveColumn(path ...string) (ColumnInfo, error) {
	return e.resolve(path, nil, 0)
}

func (e *Entity) resolve(path []string, prefix []string, depth int) (ColumnInfo, error) {
	if len(path) == 0 {
		return ColumnInfo{}, ErrMissingMapping.New(e.Name(), "<empty path>")
	}
	p, err := e.Property(path[0])
	if err != nil {
		return ColumnInfo{}, err
	}
	full := append(append([]string(nil), prefix...), path[0])
	if len(path) == 1 {
		if !p.IsPersisted() {
			return ColumnInfo{}, ErrMissingMapping.New(e.Name(), p.Name+" column")
		}
		return ColumnInfo{Owner: e, Property: p, Column: p.Column, Path: full, Depth: depth}, nil
	}
	if p.Relation == nil || p.Relation.Kind != RelationReference {
		return ColumnInfo{}, ErrMissingMapping.New(e.Name(), p.Name+"."+path[1])
	}
	target, err := e.Target(p)
	if err != nil {
		return ColumnInfo{}, err
	}
	if len(path) == 2 {
		for i, k := range target.Keys {
			if k.Name != path[1] || i >= len(p.Relation.Keys) {
				continue
			}
			fk, err := e.Property(p.Relation.Keys[i])
			if err != nil {
				return ColumnInfo{}, err
			}
			return ColumnInfo{Owner: e, Property: fk, Column: fk.Column, Path: append(full, path[1]), Depth: depth}, nil
		}
	}
	return target.resolve(path[1:], full, depth+1)
}

// Columns lists the columns of the entity. include selects persisted
// properties and follow selects references whose target columns are listed
// too; both receive the number of references followed so far.
func (e *Entity) Columns(follow, include func(depth int, p *Property) bool) []ColumnInfo {
	var out []ColumnInfo
	e.columns(nil, 0, follow, include, &out)
	return out
}

func (e *Entity) columns(prefix []string, depth int, follow, include func(int, *Property) bool, out *[]ColumnInfo) {
	for _, p := range e.Properties {
		path := append(append([]string(nil), prefix...), p.Name)
		switch {
		case p.IsPersisted():
			if include == nil || include(depth, p) {
				*out = append(*out, ColumnInfo{Owner: e, Property: p, Column: p.Column, Path: path, Depth: depth})
			}
		case p.Relation.Kind == RelationReference && follow != nil && follow(depth, p):
			target, err := e.Target(p)
			if err != nil {
				continue
			}
			target.columns(path, depth+1, follow, include, out)
		}
	}
}

// AllPersisted selects every persisted property.
func AllPersisted(int, *Property) bool { return true }

// NoFollow follows no reference.
func NoFollow(int, *Property) bool { return false }
