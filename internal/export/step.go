package export

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
)

// Extension is the file extension of exported files.
const Extension = ".ifc"

// guidNamespace seeds deterministic GlobalIds so re-exporting a document
// yields the same ids.
var guidNamespace = uuid.MustParse("6f1c8a52-3c1e-4d5e-9a57-2f0d8e4b7a10")

// StepWriter writes an ISO-10303-21 (STEP physical file) IFC export.
type StepWriter struct {
	Application string
	Now         func() time.Time
}

// NewStepWriter returns a writer stamping files with the current time.
func NewStepWriter() *StepWriter {
	return &StepWriter{Application: "mepfix", Now: time.Now}
}

// Export writes g to dir/<name>.ifc and returns the file path. The directory
// is created if needed and the file is replaced atomically.
func (w *StepWriter) Export(ctx context.Context, g *graph.Graph, dir, name string, cfg Config) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" {
		return "", pkgerrors.New("export: empty file name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pkgerrors.Wrap(err, "create export directory")
	}

	var buf bytes.Buffer
	w.write(&buf, g, name+Extension, cfg)

	path := filepath.Join(dir, name+Extension)
	tmp, err := os.CreateTemp(dir, "."+name+"-*"+Extension)
	if err != nil {
		return "", pkgerrors.Wrap(err, "create export file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return "", pkgerrors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return "", pkgerrors.Wrapf(err, "close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", pkgerrors.Wrapf(err, "rename to %s", path)
	}
	return path, nil
}

func (w *StepWriter) write(buf *bytes.Buffer, g *graph.Graph, fileName string, cfg Config) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	app := w.Application
	if app == "" {
		app = "mepfix"
	}

	out := bufio.NewWriter(buf)
	defer out.Flush()

	opts := cfg.Options()
	desc := []string{"ViewDefinition [" + viewDefinition(cfg) + "]"}
	for _, k := range slices.Sorted(maps.Keys(opts)) {
		desc = append(desc, fmt.Sprintf("Option [%s: %s]", k, opts[k]))
	}

	fmt.Fprintln(out, "ISO-10303-21;")
	fmt.Fprintln(out, "HEADER;")
	fmt.Fprintf(out, "FILE_DESCRIPTION((%s),'2;1');\n", stepList(desc))
	fmt.Fprintf(out, "FILE_NAME(%s,%s,(''),(''),%s,%s,'');\n",
		stepString(fileName), stepString(now().UTC().Format("2006-01-02T15:04:05")), stepString(app), stepString(app))
	fmt.Fprintf(out, "FILE_SCHEMA(('%s'));\n", cfg.Version.Schema())
	fmt.Fprintln(out, "ENDSEC;")
	fmt.Fprintln(out, "DATA;")

	e := &entityWriter{out: out}
	project := e.add("IFCPROJECT(%s,$,%s,$,$,$,$,$,$)", globalID(g.Name, "project"), stepString(g.Name))

	var products []int
	for _, id := range g.EquipmentIDs() {
		eq, _ := g.Equipment(id)
		ref := e.add("%s(%s,$,%s,$,$,$,$,%s)",
			equipmentEntity(eq.Category, cfg.Version), globalID(g.Name, eq.Key), stepString(displayName(eq.Key, eq.Name)), stepString(eq.Key))
		products = append(products, ref)
		w.writeProperties(e, g.Name, eq, ref, cfg)
	}
	for _, id := range g.SubsystemIDs() {
		sys, _ := g.Subsystem(id)
		ref := e.add("%s(%s,$,%s,%s,$)",
			systemEntity(cfg.Version), globalID(g.Name, sys.Key), stepString(displayName(sys.Key, sys.Name)), stepString(string(sys.Kind)))
		var members []int
		for _, m := range sys.Members {
			members = append(members, products[m])
		}
		if len(members) > 0 {
			e.add("IFCRELASSIGNSTOGROUP(%s,$,$,$,(%s),$,#%d)", globalID(g.Name, sys.Key+"/members"), refs(members), ref)
		}
	}
	if len(products) > 0 {
		e.add("IFCRELAGGREGATES(%s,$,$,$,#%d,(%s))", globalID(g.Name, "aggregate"), project, refs(products))
	}

	fmt.Fprintln(out, "ENDSEC;")
	fmt.Fprintln(out, "END-ISO-10303-21;")
}

func (w *StepWriter) writeProperties(e *entityWriter, doc string, eq graph.Equipment, ref int, cfg Config) {
	if cfg.PropertySets.Common && len(eq.Parameters) > 0 {
		var props []int
		for _, k := range slices.Sorted(maps.Keys(eq.Parameters)) {
			props = append(props, e.add("IFCPROPERTYSINGLEVALUE(%s,$,IFCREAL(%s),$)", stepString(k), stepReal(eq.Parameters[k])))
		}
		pset := e.add("IFCPROPERTYSET(%s,$,'Pset_%s',$,(%s))", globalID(doc, eq.Key+"/pset"), psetName(eq.Category), refs(props))
		e.add("IFCRELDEFINESBYPROPERTIES(%s,$,$,$,(#%d),#%d)", globalID(doc, eq.Key+"/pset/rel"), ref, pset)
	}
	if cfg.BaseQuantities {
		count := e.add("IFCQUANTITYCOUNT('ConnectorCount',$,$,%d.)", len(eq.Connectors))
		qto := e.add("IFCELEMENTQUANTITY(%s,$,'BaseQuantities',$,$,(#%d))", globalID(doc, eq.Key+"/qto"), count)
		e.add("IFCRELDEFINESBYPROPERTIES(%s,$,$,$,(#%d),#%d)", globalID(doc, eq.Key+"/qto/rel"), ref, qto)
	}
}

type entityWriter struct {
	out  *bufio.Writer
	next int
}

func (e *entityWriter) add(format string, args ...any) int {
	e.next++
	fmt.Fprintf(e.out, "#%d=%s;\n", e.next, fmt.Sprintf(format, args...))
	return e.next
}

func viewDefinition(cfg Config) string {
	view := "CoordinationView_V2.0"
	if cfg.Version.Schema() == "IFC4" {
		view = "ReferenceView_V1.2"
	}
	if cfg.BaseQuantities {
		view += ", QuantityTakeOffAddOnView"
	}
	switch cfg.SpaceBoundaries {
	case 1:
		view += ", SpaceBoundary1stLevelAddOnView"
	case 2:
		view += ", SpaceBoundary2ndLevelAddOnView"
	}
	return view
}

func equipmentEntity(c models.Category, v Version) string {
	switch c {
	case models.CategoryElectricalEquipment:
		if v.Schema() == "IFC4" {
			return "IFCELECTRICDISTRIBUTIONBOARD"
		}
		return "IFCELECTRICDISTRIBUTIONPOINT"
	case models.CategoryMechanicalEquipment:
		return "IFCENERGYCONVERSIONDEVICE"
	case models.CategoryPlumbingFixture:
		return "IFCFLOWTERMINAL"
	default:
		return "IFCBUILDINGELEMENTPROXY"
	}
}

func systemEntity(v Version) string {
	if v.Schema() == "IFC4" {
		return "IFCDISTRIBUTIONSYSTEM"
	}
	return "IFCSYSTEM"
}

func psetName(c models.Category) string {
	switch c {
	case models.CategoryElectricalEquipment:
		return "ElectricalDeviceCommon"
	case models.CategoryMechanicalEquipment:
		return "EnergyConversionDeviceCommon"
	case models.CategoryPlumbingFixture:
		return "FlowTerminalTypeCommon"
	default:
		return "BuildingElementProxyCommon"
	}
}

func displayName(key, name string) string {
	if name != "" {
		return name
	}
	return key
}

func refs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ",")
}

func stepString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func stepList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = stepString(s)
	}
	return strings.Join(quoted, ",")
}

func stepReal(v float64) string {
	s := fmt.Sprintf("%g", v)
	if !strings.ContainsAny(s, ".e") {
		s += "."
	}
	return s
}

const guidAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_$"

// globalID derives a 22 character IFC GlobalId from the document name and an
// element key.
func globalID(doc, key string) string {
	u := uuid.NewSHA1(guidNamespace, []byte(doc+"\x00"+key))
	out := make([]byte, 0, 22)
	out = appendBase64(out, uint32(u[0]), 2)
	for i := 1; i < 16; i += 3 {
		out = appendBase64(out, uint32(u[i])<<16|uint32(u[i+1])<<8|uint32(u[i+2]), 4)
	}
	return "'" + string(out) + "'"
}

func appendBase64(dst []byte, v uint32, digits int) []byte {
	buf := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		buf[i] = guidAlphabet[v%64]
		v /= 64
	}
	return append(dst, buf...)
}
