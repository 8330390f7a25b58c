package rdf

const (
	RDFNamespace   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace  = "http://www.w3.org/2000/01/rdf-schema#"
	OWLNamespace   = "http://www.w3.org/2002/07/owl#"
	XSDNamespace   = "http://www.w3.org/2001/XMLSchema#"
	LBDHONamespace = "http://drumbeat.cs.hut.fi/owl/lbdho.ttl#"
	IFCNamespace   = "http://drumbeat.cs.hut.fi/owl/ifc#"
)

var (
	RDFType       = IRI{Value: RDFNamespace + "type"}
	RDFFirst      = IRI{Value: RDFNamespace + "first"}
	RDFRest       = IRI{Value: RDFNamespace + "rest"}
	RDFNil        = IRI{Value: RDFNamespace + "nil"}
	RDFLangString = IRI{Value: RDFNamespace + "langString"}
	RDFXMLLiteral = IRI{Value: RDFNamespace + "XMLLiteral"}

	RDFSLabel = IRI{Value: RDFSNamespace + "label"}

	XSDString   = IRI{Value: XSDNamespace + "string"}
	XSDBoolean  = IRI{Value: XSDNamespace + "boolean"}
	XSDInteger  = IRI{Value: XSDNamespace + "integer"}
	XSDDecimal  = IRI{Value: XSDNamespace + "decimal"}
	XSDDouble   = IRI{Value: XSDNamespace + "double"}
	XSDDateTime = IRI{Value: XSDNamespace + "dateTime"}
)

// Linked building data ontology terms used in the metadata graph.
var (
	LBDHOCollection   = IRI{Value: LBDHONamespace + "Collection"}
	LBDHODataSource   = IRI{Value: LBDHONamespace + "DataSource"}
	LBDHODataSet      = IRI{Value: LBDHONamespace + "DataSet"}
	LBDHOSubscription = IRI{Value: LBDHONamespace + "Subscription"}

	LBDHOName          = IRI{Value: LBDHONamespace + "name"}
	LBDHOHasDataSource = IRI{Value: LBDHONamespace + "hasDataSource"}
	LBDHOHasDataSet    = IRI{Value: LBDHONamespace + "hasDataSet"}
	LBDHOInCollection  = IRI{Value: LBDHONamespace + "inCollection"}
	LBDHOInDataSource  = IRI{Value: LBDHONamespace + "inDataSource"}

	// LBDHOCreateToken tags a conditional insert on a remote store for
	// the duration of one call.
	LBDHOCreateToken = IRI{Value: LBDHONamespace + "createToken"}
)
