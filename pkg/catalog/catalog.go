package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Page is a protected UI route within a module
type Page struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// Module is an ordered group of pages
type Module struct {
	Code  string `yaml:"code" json:"code"`
	Name  string `yaml:"name" json:"name"`
	Pages []Page `yaml:"pages" json:"pages"`
}

// PageCodes returns the codes of the module's pages in order
func (m Module) PageCodes() []string {
	codes := make([]string, len(m.Pages))
	for i, p := range m.Pages {
		codes[i] = p.Code
	}
	return codes
}

// Resource is a protected entity with a fixed column universe
type Resource struct {
	Code    string   `yaml:"code" json:"code"`
	Name    string   `yaml:"name" json:"name"`
	Columns []string `yaml:"columns" json:"columns"`
}

// HasColumn reports whether column belongs to the resource
func (r Resource) HasColumn(column string) bool {
	for _, c := range r.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Catalog is the read-only reference data of modules, pages and resources
type Catalog struct {
	Modules   []Module   `yaml:"modules" json:"modules"`
	Resources []Resource `yaml:"resources" json:"resources"`

	moduleByCode   map[string]int
	moduleByPage   map[string]int
	resourceByCode map[string]int
}

// Default returns the embedded catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file, or returns the embedded catalog when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

// index builds lookup tables and checks that codes are unique and that every
// page belongs to exactly one module
func (c *Catalog) index() error {
	c.moduleByCode = make(map[string]int, len(c.Modules))
	c.moduleByPage = make(map[string]int)
	c.resourceByCode = make(map[string]int, len(c.Resources))

	for i, m := range c.Modules {
		if m.Code == "" {
			return fmt.Errorf("catalog: module %d has no code", i)
		}
		if _, dup := c.moduleByCode[m.Code]; dup {
			return fmt.Errorf("catalog: duplicate module %s", m.Code)
		}
		c.moduleByCode[m.Code] = i

		for _, p := range m.Pages {
			if p.Code == "" {
				return fmt.Errorf("catalog: module %s has a page without code", m.Code)
			}
			if other, dup := c.moduleByPage[p.Code]; dup {
				return fmt.Errorf("catalog: page %s is in modules %s and %s", p.Code, c.Modules[other].Code, m.Code)
			}
			c.moduleByPage[p.Code] = i
		}
	}

	for i, r := range c.Resources {
		if r.Code == "" {
			return fmt.Errorf("catalog: resource %d has no code", i)
		}
		if _, dup := c.resourceByCode[r.Code]; dup {
			return fmt.Errorf("catalog: duplicate resource %s", r.Code)
		}
		seen := make(map[string]bool, len(r.Columns))
		for _, col := range r.Columns {
			if col == "" || col == "*" || seen[col] {
				return fmt.Errorf("catalog: resource %s has invalid or duplicate column %q", r.Code, col)
			}
			seen[col] = true
		}
		c.resourceByCode[r.Code] = i
	}

	return nil
}

// Module returns the module with code
func (c *Catalog) Module(code string) (Module, bool) {
	i, ok := c.moduleByCode[code]
	if !ok {
		return Module{}, false
	}
	return c.Modules[i], true
}

// ModuleOfPage returns the module that owns page code
func (c *Catalog) ModuleOfPage(pageCode string) (Module, bool) {
	i, ok := c.moduleByPage[pageCode]
	if !ok {
		return Module{}, false
	}
	return c.Modules[i], true
}

// Resource returns the resource with code
func (c *Catalog) Resource(code string) (Resource, bool) {
	i, ok := c.resourceByCode[code]
	if !ok {
		return Resource{}, false
	}
	return c.Resources[i], true
}

// Columns returns the column universe of resource code
func (c *Catalog) Columns(code string) ([]string, bool) {
	r, ok := c.Resource(code)
	if !ok {
		return nil, false
	}
	return r.Columns, true
}
