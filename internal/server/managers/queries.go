package managers

import (
	"github.com/systemshift/drumbeat/internal/rdf"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

// Query templates. Caller input only ever reaches a store as a bound term.
var (
	// <uri> rdf:type $class for every entity of a class.
	listQuery = graph.Template{
		Name: "entity.list",
		Project: []graph.Projection{
			{As: graph.ColSubject, Slot: graph.Var("uri")},
			{As: graph.ColPredicate, Slot: graph.Const(rdf.RDFType)},
			{As: graph.ColObject, Slot: graph.Param("class")},
		},
		Where: []graph.Pattern{
			{S: graph.Var("uri"), P: graph.Const(rdf.RDFType), O: graph.Param("class")},
		},
		OrderBy: []string{graph.ColSubject},
	}

	// Entities of a class linked to a parent by $edge.
	listChildrenQuery = graph.Template{
		Name: "entity.listChildren",
		Project: []graph.Projection{
			{As: graph.ColSubject, Slot: graph.Var("uri")},
			{As: graph.ColPredicate, Slot: graph.Const(rdf.RDFType)},
			{As: graph.ColObject, Slot: graph.Param("class")},
		},
		Where: []graph.Pattern{
			{S: graph.Param("parent"), P: graph.Param("edge"), O: graph.Var("uri")},
			{S: graph.Var("uri"), P: graph.Const(rdf.RDFType), O: graph.Param("class")},
		},
		OrderBy: []string{graph.ColSubject},
	}

	describeQuery = graph.Template{
		Name: "entity.describe",
		Project: []graph.Projection{
			{As: graph.ColSubject, Slot: graph.Param("uri")},
			{As: graph.ColPredicate, Slot: graph.Var("p")},
			{As: graph.ColObject, Slot: graph.Var("o")},
		},
		Where: []graph.Pattern{
			{S: graph.Param("uri"), P: graph.Var("p"), O: graph.Var("o")},
		},
		OrderBy: []string{graph.ColSubject, graph.ColPredicate, graph.ColObject},
	}

	existsQuery = graph.Template{
		Name: "entity.exists",
		Where: []graph.Pattern{
			{S: graph.Param("uri"), P: graph.Const(rdf.RDFType), O: graph.Param("class")},
		},
	}

	hasChildrenQuery = graph.Template{
		Name: "entity.hasChildren",
		Where: []graph.Pattern{
			{S: graph.Param("uri"), P: graph.Param("edge"), O: graph.Var("child")},
			{S: graph.Var("child"), P: graph.Const(rdf.RDFType), O: graph.Param("class")},
		},
	}

	deleteSubjectQuery = graph.Template{
		Name: "entity.deleteSubject",
		Where: []graph.Pattern{
			{S: graph.Param("uri"), P: graph.Var("p"), O: graph.Var("o")},
		},
	}

	deleteEdgeQuery = graph.Template{
		Name: "entity.deleteEdge",
		Where: []graph.Pattern{
			{S: graph.Param("parent"), P: graph.Param("edge"), O: graph.Param("uri")},
		},
	}

	// Typed resources of a content graph.
	objectListQuery = graph.Template{
		Name: "object.list",
		Project: []graph.Projection{
			{As: graph.ColSubject, Slot: graph.Var("s")},
			{As: graph.ColPredicate, Slot: graph.Const(rdf.RDFType)},
			{As: graph.ColObject, Slot: graph.Var("type")},
		},
		Where: []graph.Pattern{
			{S: graph.Var("s"), P: graph.Const(rdf.RDFType), O: graph.Var("type")},
		},
		OrderBy: []string{graph.ColSubject, graph.ColObject},
	}

	objectTypeQuery = graph.Template{
		Name: "object.type",
		Project: []graph.Projection{
			{As: graph.ColSubject, Slot: graph.Param("uri")},
			{As: graph.ColPredicate, Slot: graph.Const(rdf.RDFType)},
			{As: graph.ColObject, Slot: graph.Var("type")},
		},
		Where: []graph.Pattern{
			{S: graph.Param("uri"), P: graph.Const(rdf.RDFType), O: graph.Var("type")},
		},
		OrderBy: []string{graph.ColObject},
	}

	// Properties of $uri whose object has a type from a filtered set.
	objectTypedValuesQuery = graph.Template{
		Name: "object.typedValues",
		Project: []graph.Projection{
			{As: graph.ColSubject, Slot: graph.Param("uri")},
			{As: graph.ColPredicate, Slot: graph.Var("p")},
			{As: graph.ColObject, Slot: graph.Var("o")},
		},
		Where: []graph.Pattern{
			{S: graph.Param("uri"), P: graph.Var("p"), O: graph.Var("o")},
			{S: graph.Var("o"), P: graph.Const(rdf.RDFType), O: graph.Var("otype")},
		},
		OrderBy: []string{graph.ColSubject, graph.ColPredicate, graph.ColObject},
	}
)
